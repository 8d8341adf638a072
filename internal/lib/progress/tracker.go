package progress

import (
	"errors"
	"fmt"

	"github.com/dpup/route-planner/server/internal/lib/routing"
)

// ErrSegmentOutOfRange is returned for an index outside the current segments
var ErrSegmentOutOfRange = errors.New("segment index out of range")

// Summary is the aggregate of the segments marked as traveled
type Summary struct {
	Count           int     `json:"count"`
	Total           int     `json:"total"`
	DistanceMeters  float64 `json:"distance_meters"`
	DurationMinutes float64 `json:"duration_minutes"`
}

// Tracker is the manual "traveled" checklist over one segment list. A new
// route means a new Tracker; marks never carry over.
type Tracker struct {
	segments []routing.Segment
	traveled map[int]bool
}

// NewTracker creates an empty checklist for segments
func NewTracker(segments []routing.Segment) *Tracker {
	return &Tracker{
		segments: segments,
		traveled: make(map[int]bool),
	}
}

// Toggle marks or clears one segment
func (t *Tracker) Toggle(index int, traveled bool) error {
	if err := checkIndex(index, len(t.segments)); err != nil {
		return err
	}
	if traveled {
		t.traveled[index] = true
	} else {
		delete(t.traveled, index)
	}
	return nil
}

// IsTraveled reports whether index is marked. Out-of-range indices are never marked.
func (t *Tracker) IsTraveled(index int) bool {
	return t.traveled[index]
}

// Traveled returns the marked indices in ascending order
func (t *Tracker) Traveled() []int {
	indices := []int{}
	for i := range t.segments {
		if t.traveled[i] {
			indices = append(indices, i)
		}
	}
	return indices
}

// Summary sums distance and duration over the marked segments
func (t *Tracker) Summary() Summary {
	summary := Summary{Total: len(t.segments)}
	for i, segment := range t.segments {
		if !t.traveled[i] {
			continue
		}
		summary.Count++
		summary.DistanceMeters += segment.DistanceMeters
		summary.DurationMinutes += segment.DurationMinutes
	}
	return summary
}

func checkIndex(index, n int) error {
	if index < 0 || index >= n {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrSegmentOutOfRange, index, n)
	}
	return nil
}
