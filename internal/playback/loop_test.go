package playback

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/captiondesk/internal/model"
)

func TestRangeForFloors(t *testing.T) {
	cases := []struct {
		name string
		seg  model.Segment
		want Range
	}{
		{"normal", model.Segment{Start: 1, End: 2}, Range{Start: 1, End: 2}},
		{"negative start", model.Segment{Start: -3, End: 2}, Range{Start: 0, End: 2}},
		{"inverted", model.Segment{Start: 5, End: 4}, Range{Start: 5, End: 5 + MinDuration}},
		{"zero length", model.Segment{Start: 2, End: 2}, Range{Start: 2, End: 2 + MinDuration}},
		{"nan", model.Segment{Start: math.NaN(), End: math.Inf(1)}, Range{Start: 0, End: MinDuration}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RangeFor(tc.seg)
			require.InDelta(t, tc.want.Start, got.Start, 1e-9)
			require.InDelta(t, tc.want.End, got.End, 1e-9)
		})
	}
}

func TestRangeForFloorsArbitraryInput(t *testing.T) {
	values := []float64{-100, -1, -0.01, 0, 0.01, 0.04, 1, 3.5, 1e6, math.NaN(), math.Inf(-1)}
	for _, s := range values {
		for _, e := range values {
			var l Looper
			r, ok := l.Toggle(0, model.Segment{Start: s, End: e})
			require.True(t, ok)
			require.GreaterOrEqual(t, r.Start, 0.0)
			require.GreaterOrEqual(t, r.End, r.Start+MinDuration-1e-12)
		}
	}
}

func TestToggleSameIndexClears(t *testing.T) {
	var l Looper
	seg := model.Segment{Start: 1, End: 2}

	_, ok := l.Toggle(3, seg)
	require.True(t, ok)
	idx, r, ok := l.Selection()
	require.True(t, ok)
	require.Equal(t, 3, idx)
	require.Equal(t, Range{Start: 1, End: 2}, r)

	_, ok = l.Toggle(3, seg)
	require.False(t, ok)
	_, _, ok = l.Selection()
	require.False(t, ok)
	require.False(t, l.hasIndex)
}

func TestToggleOtherIndexMovesLoop(t *testing.T) {
	var l Looper
	l.Toggle(0, model.Segment{Start: 0, End: 1})
	r, ok := l.Toggle(1, model.Segment{Start: 1, End: 2})
	require.True(t, ok)
	require.Equal(t, Range{Start: 1, End: 2}, r)
	idx, _, _ := l.Selection()
	require.Equal(t, 1, idx)
}

func TestClearRangeKeepsIndex(t *testing.T) {
	var l Looper
	seg := model.Segment{Start: 1, End: 2}
	l.Toggle(2, seg)
	l.ClearRange()

	_, _, ok := l.Selection()
	require.False(t, ok)
	require.True(t, l.hasIndex)
	require.Equal(t, 2, l.index)

	// With the range gone, toggling the same index loops it again.
	_, ok = l.Toggle(2, seg)
	require.True(t, ok)
}

func TestRefreshOnlyForActiveLoop(t *testing.T) {
	var l Looper
	require.False(t, l.Refresh(0, model.Segment{Start: 1, End: 2}))

	l.Toggle(0, model.Segment{Start: 1, End: 2})
	require.False(t, l.Refresh(1, model.Segment{Start: 5, End: 6}))
	require.True(t, l.Refresh(0, model.Segment{Start: 1.5, End: 1}))

	_, r, _ := l.Selection()
	require.InDelta(t, 1.5, r.Start, 1e-9)
	require.InDelta(t, 1.55, r.End, 1e-9)
}

func TestCheckSeeksOnChangeAndArrival(t *testing.T) {
	var l Looper
	_, seek := l.Check(10)
	require.False(t, seek, "no loop, no seek")

	l.Toggle(0, model.Segment{Start: 4, End: 6})
	pos, seek := l.Check(0)
	require.True(t, seek, "fresh range seeks to start")
	require.Equal(t, 4.0, pos)

	_, seek = l.Check(5)
	require.False(t, seek)

	pos, seek = l.Check(5.96)
	require.True(t, seek, "within tolerance counts as arrived")
	require.Equal(t, 4.0, pos)

	pos, seek = l.Check(7)
	require.True(t, seek)
	require.Equal(t, 4.0, pos)

	l.Refresh(0, model.Segment{Start: 4.5, End: 6})
	pos, seek = l.Check(4.6)
	require.True(t, seek, "edited range seeks again")
	require.Equal(t, 4.5, pos)

	l.Clear()
	_, seek = l.Check(100)
	require.False(t, seek)
}
