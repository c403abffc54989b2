// Package playback keeps the "repeat this segment" loop selection and tells a
// player when to seek back to the start of the loop.
package playback

import (
	"math"

	"github.com/dharsanguruparan/captiondesk/internal/model"
)

const (
	// MinDuration is the shortest loop range, in seconds.
	MinDuration = 0.05
	// ArrivalTolerance is how close to End counts as having arrived.
	ArrivalTolerance = 0.05
)

// Range is a loop window in seconds. End >= Start+MinDuration and Start >= 0.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// RangeFor derives a loop range from a segment, flooring bad input.
func RangeFor(seg model.Segment) Range {
	start := math.Max(0, model.Finite(seg.Start))
	end := math.Max(start+MinDuration, model.Finite(seg.End))
	return Range{Start: start, End: end}
}

// Looper tracks the active loop segment. It is not safe for concurrent use;
// the session controller serializes access.
type Looper struct {
	index    int
	hasIndex bool
	rng      Range
	set      bool
	seek     bool
}

// Toggle clears the loop when index is already looping, otherwise loops seg.
// It reports whether a loop is active afterwards.
func (l *Looper) Toggle(index int, seg model.Segment) (Range, bool) {
	if l.set && l.hasIndex && l.index == index {
		l.Clear()
		return Range{}, false
	}
	l.index, l.hasIndex = index, true
	l.setRange(RangeFor(seg))
	return l.rng, true
}

// Refresh recomputes the range after segment index was edited. It is a no-op
// unless index is the active loop segment and a loop is set.
func (l *Looper) Refresh(index int, seg model.Segment) bool {
	if !l.set || !l.hasIndex || l.index != index {
		return false
	}
	l.setRange(RangeFor(seg))
	return true
}

func (l *Looper) setRange(r Range) {
	changed := !l.set || r != l.rng
	l.rng, l.set = r, true
	if changed {
		l.seek = true
	}
}

// Clear drops both the range and the active index.
func (l *Looper) Clear() {
	*l = Looper{}
}

// ClearRange drops the range but remembers the active index.
func (l *Looper) ClearRange() {
	l.rng, l.set, l.seek = Range{}, false, false
}

// Selection returns the active index and range when a loop is set.
func (l *Looper) Selection() (int, Range, bool) {
	if !l.set {
		return 0, Range{}, false
	}
	return l.index, l.rng, true
}

// Check is called with the current playback position. It returns the
// position to seek to when the range just changed or playback arrived at End.
func (l *Looper) Check(position float64) (float64, bool) {
	if !l.set {
		return 0, false
	}
	if l.seek {
		l.seek = false
		return l.rng.Start, true
	}
	if position >= l.rng.End-ArrivalTolerance {
		return l.rng.Start, true
	}
	return 0, false
}
