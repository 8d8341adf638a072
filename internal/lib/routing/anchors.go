package routing

import (
	"math"

	"github.com/dpup/route-planner/server/internal/lib/geo"
)

// Anchors are the inclusive geometry indices a leg is sliced from
type Anchors struct {
	Start   int  `json:"start"`
	End     int  `json:"end"`
	Clamped bool `json:"clamped"` // End fell back to Start, leg is a single point
}

// FindAnchors maps a leg's start and end waypoints onto the route geometry.
//
// Distances are planar on raw degrees, which is adequate at city scale.
// Start is the first point nearest to start. End is the first point nearest
// to end among indices after Start; when Start is the last index there is no
// candidate and End falls back to the last index. That fallback can leave
// End == Start, in which case the leg is clamped to the single point at Start
// and reported with Clamped set.
//
// ok is false only for an empty geometry.
func FindAnchors(geometry []geo.Point, start, end geo.Point) (anchors Anchors, ok bool) {
	if len(geometry) == 0 {
		return Anchors{}, false
	}

	geoUtils := geo.NewGeoUtils()

	startIndex := 0
	minStart := math.Inf(1)
	for i, point := range geometry {
		if d := geoUtils.PlanarDistance(point, start); d < minStart {
			minStart = d
			startIndex = i
		}
	}

	endIndex := -1
	minEnd := math.Inf(1)
	for i := startIndex + 1; i < len(geometry); i++ {
		if d := geoUtils.PlanarDistance(geometry[i], end); d < minEnd {
			minEnd = d
			endIndex = i
		}
	}
	if endIndex < 0 {
		endIndex = len(geometry) - 1
	}

	return clampAnchors(startIndex, endIndex), true
}

// clampAnchors resolves a backtracking leg (end at or before start) to a
// single-point leg at start rather than an empty or reversed slice.
func clampAnchors(start, end int) Anchors {
	if end <= start {
		return Anchors{Start: start, End: start, Clamped: true}
	}
	return Anchors{Start: start, End: end}
}
