package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/captiondesk/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestUpsertInsertsThenMerges(t *testing.T) {
	r := New()
	item, created := r.Upsert("h1", Patch{
		Name: ptr("talk.mp4"),
		Size: ptr(int64(42)),
		Src:  ptr("blob:captiondesk/1"),
	})
	require.True(t, created)
	require.Equal(t, model.StatusNew, item.Status)
	require.Empty(t, item.Segments)
	require.NotNil(t, item.Segments)

	item, created = r.Upsert("h1", Patch{
		Name:        ptr("renamed.mp4"),
		SubtitleURL: ptr("http://api/static/h1.vtt"),
	})
	require.False(t, created)
	require.Equal(t, "talk.mp4", item.Name, "name is immutable after creation")
	require.Equal(t, int64(42), item.Size)
	require.Equal(t, "blob:captiondesk/1", item.Src, "absent fields are kept")
	require.Equal(t, "http://api/static/h1.vtt", item.SubtitleURL)
	require.Equal(t, 1, r.Len())
}

func TestAllKeepsInsertionOrder(t *testing.T) {
	r := New()
	for _, id := range []string{"c", "a", "b"} {
		r.Upsert(id, Patch{})
	}
	r.Upsert("a", Patch{Language: ptr("en")})

	var ids []string
	for _, item := range r.All() {
		ids = append(ids, item.ID)
	}
	require.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestGetReturnsCopy(t *testing.T) {
	r := New()
	segs := []model.Segment{{Start: 0, End: 1, Text: "hi"}}
	r.Upsert("h", Patch{Segments: &segs})
	segs[0].Text = "mutated by caller"

	item, err := r.Get("h")
	require.NoError(t, err)
	require.Equal(t, "hi", item.Segments[0].Text)

	item.Segments[0].Text = "mutated copy"
	again, err := r.Get("h")
	require.NoError(t, err)
	require.Equal(t, "hi", again.Segments[0].Text)

	_, err = r.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, r.Has("missing"))
}

func TestTransitionLifecycle(t *testing.T) {
	r := New()
	r.Upsert("h", Patch{})

	for _, status := range []model.Status{
		model.StatusProcessing,
		model.StatusError,
		model.StatusProcessing,
		model.StatusDone,
	} {
		_, err := r.Transition("h", status)
		require.NoError(t, err, "transition to %s", status)
	}
	item, err := r.Transition("h", model.StatusDone)
	require.NoError(t, err, "same status is a no-op")
	require.Equal(t, model.StatusDone, item.Status)
}

func TestTransitionRejectsInvalidEdges(t *testing.T) {
	r := New()
	r.Upsert("h", Patch{})

	_, err := r.Transition("h", model.StatusDone)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = r.Transition("h", model.StatusError)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = r.Transition("h", model.StatusProcessing)
	require.NoError(t, err)
	_, err = r.Transition("h", model.StatusNew)
	require.NoError(t, err, "precondition failure returns the item to new")

	_, err = r.Transition("missing", model.StatusProcessing)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceSegmentOnlyTouchesIndex(t *testing.T) {
	r := New()
	segs := []model.Segment{
		{Start: 0, End: 1, Text: "a"},
		{Start: 1, End: 2, Text: "b"},
		{Start: 2, End: 3, Text: "c"},
	}
	r.Upsert("h", Patch{Segments: &segs})
	before, err := r.Get("h")
	require.NoError(t, err)

	after, err := r.ReplaceSegment("h", 2, model.Segment{Start: 2, End: 1.5, Text: "C"})
	require.NoError(t, err)
	require.Len(t, after.Segments, 3)
	require.Equal(t, before.Segments[:2], after.Segments[:2])
	require.Equal(t, model.Segment{Start: 2, End: 1.5, Text: "C"}, after.Segments[2])
	require.Equal(t, "c", before.Segments[2].Text, "earlier snapshots are unaffected")

	_, err = r.ReplaceSegment("h", 3, model.Segment{})
	require.ErrorIs(t, err, ErrSegmentOutOfRange)
	_, err = r.ReplaceSegment("h", -1, model.Segment{})
	require.ErrorIs(t, err, ErrSegmentOutOfRange)
}

func TestTimestamps(t *testing.T) {
	r := New()
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return clock }

	item, _ := r.Upsert("h", Patch{})
	require.Equal(t, clock, item.CreatedAt)

	clock = clock.Add(time.Minute)
	item, err := r.Transition("h", model.StatusProcessing)
	require.NoError(t, err)
	require.Equal(t, clock, item.UpdatedAt)
	require.Equal(t, clock.Add(-time.Minute), item.CreatedAt)
}
