package progress

import "github.com/dpup/route-planner/server/internal/lib/routing"

// Focus tracks the single highlighted segment, if any
type Focus struct {
	index   int
	focused bool
}

// Toggle focuses index, replacing any previous focus, or clears the focus
// when index is already focused. n is the current segment count.
func (f *Focus) Toggle(index, n int) error {
	if err := checkIndex(index, n); err != nil {
		return err
	}
	if f.focused && f.index == index {
		f.Clear()
		return nil
	}
	f.index = index
	f.focused = true
	return nil
}

// Clear restores the full-route view
func (f *Focus) Clear() {
	f.index = 0
	f.focused = false
}

// Current returns the focused index and whether one is focused
func (f *Focus) Current() (int, bool) {
	return f.index, f.focused
}

// LegView is the display state of one segment
type LegView struct {
	Index    int  `json:"index"`
	Focused  bool `json:"focused"`
	Dimmed   bool `json:"dimmed"` // Another leg is focused, or this one is traveled
	Traveled bool `json:"traveled"`
}

// View combines progress and focus into per-leg display state
func View(segments []routing.Segment, tracker *Tracker, focus *Focus) []LegView {
	focusedIndex, anyFocused := focus.Current()

	views := make([]LegView, len(segments))
	for i := range segments {
		traveled := tracker != nil && tracker.IsTraveled(i)
		focused := anyFocused && focusedIndex == i
		views[i] = LegView{
			Index:    i,
			Focused:  focused,
			Traveled: traveled,
			Dimmed:   traveled || (anyFocused && !focused),
		}
	}
	return views
}
