package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/captiondesk/internal/model"
	"github.com/dharsanguruparan/captiondesk/internal/repository"
	"github.com/dharsanguruparan/captiondesk/internal/subtitle"
)

type fakeStore struct {
	saved  []*repository.Transcript
	err    error
	getErr error
}

func (f *fakeStore) Get(_ context.Context, id string) (*repository.Transcript, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for i := len(f.saved) - 1; i >= 0; i-- {
		if f.saved[i].ID == id {
			row := *f.saved[i]
			return &row, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
}

func (f *fakeStore) Save(_ context.Context, t *repository.Transcript) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, t)
	return nil
}

type fakeObjects struct {
	objects map[string]string
	types   map[string]string
	uploads int
	ttl     time.Duration
	err     error
}

func (f *fakeObjects) UploadSubtitle(_ context.Context, key string, data []byte, contentType string) error {
	if f.err != nil {
		return f.err
	}
	if f.objects == nil {
		f.objects = map[string]string{}
		f.types = map[string]string{}
	}
	f.uploads++
	f.objects[key] = string(data)
	f.types[key] = contentType
	return nil
}

func (f *fakeObjects) PresignSubtitleURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	f.ttl = ttl
	return "https://s3.example.com/" + key + "?sig=1", nil
}

func doneItem() model.UploadItem {
	return model.UploadItem{
		ID:           "abc123",
		Name:         "talk.mp4",
		Size:         99,
		Src:          "http://api/static/abc123.mp4",
		Status:       model.StatusDone,
		Segments:     []model.Segment{{Start: 0, End: 1, Text: "hi"}},
		Language:     "en",
		ModelProfile: model.ProfileSmall,
	}
}

func TestArchiveWritesBothSinks(t *testing.T) {
	store := &fakeStore{}
	objects := &fakeObjects{}
	a := New(store, objects, 10*time.Minute, log.NewStdLogger(io.Discard))
	require.True(t, a.Enabled())

	receipt, err := a.Archive(context.Background(), doneItem())
	require.NoError(t, err)
	require.True(t, receipt.Saved)
	require.Equal(t, "transcripts/abc123.vtt", receipt.Keys[subtitle.VTT])
	require.Equal(t, "https://s3.example.com/transcripts/abc123.srt?sig=1", receipt.Exports[subtitle.SRT])
	require.Equal(t, 10*time.Minute, objects.ttl)

	require.True(t, strings.HasPrefix(objects.objects["transcripts/abc123.vtt"], "WEBVTT\n\n"))
	require.Equal(t, "text/vtt; charset=utf-8", objects.types["transcripts/abc123.vtt"])
	require.Contains(t, objects.objects["transcripts/abc123.srt"], "00:00:00,000 --> 00:00:01,000")

	require.Len(t, store.saved, 1)
	row := store.saved[0]
	require.Equal(t, "talk.mp4", row.FileName)
	require.Equal(t, model.ProfileSmall, row.ModelProfile)
	require.NotNil(t, row.VTTKey)
	require.Equal(t, "transcripts/abc123.vtt", *row.VTTKey)
	require.Len(t, row.Segments, 1)
}

func TestArchiveRejectsUnfinishedItems(t *testing.T) {
	store := &fakeStore{}
	a := New(store, nil, time.Minute, log.NewStdLogger(io.Discard))
	item := doneItem()
	item.Status = model.StatusError

	_, err := a.Archive(context.Background(), item)
	require.ErrorIs(t, err, ErrNotDone)
	require.Empty(t, store.saved)
}

func TestArchiveStoreOnly(t *testing.T) {
	store := &fakeStore{}
	a := New(store, nil, time.Minute, log.NewStdLogger(io.Discard))
	item := doneItem()
	item.Segments = nil

	receipt, err := a.Archive(context.Background(), item)
	require.NoError(t, err)
	require.True(t, receipt.Saved)
	require.Empty(t, receipt.Exports)
	require.Nil(t, store.saved[0].VTTKey)
	require.NotNil(t, store.saved[0].Segments)
}

func TestArchiveExportFailureSkipsSave(t *testing.T) {
	store := &fakeStore{}
	boom := errors.New("bucket unreachable")
	a := New(store, &fakeObjects{err: boom}, time.Minute, log.NewStdLogger(io.Discard))

	_, err := a.Archive(context.Background(), doneItem())
	require.ErrorIs(t, err, boom)
	require.Empty(t, store.saved)
}

func TestDisabledArchiver(t *testing.T) {
	var a *Archiver
	require.False(t, a.Enabled())
	require.False(t, New(nil, nil, 0, nil).Enabled())
}

func TestArchiveReusesUnchangedRow(t *testing.T) {
	store := &fakeStore{}
	objects := &fakeObjects{}
	a := New(store, objects, time.Minute, log.NewStdLogger(io.Discard))

	first, err := a.Archive(context.Background(), doneItem())
	require.NoError(t, err)
	require.False(t, first.Reused)
	require.Equal(t, 2, objects.uploads)

	second, err := a.Archive(context.Background(), doneItem())
	require.NoError(t, err)
	require.True(t, second.Reused)
	require.True(t, second.Saved)
	require.Equal(t, 2, objects.uploads)
	require.Len(t, store.saved, 1)
	require.Equal(t, first.Keys, second.Keys)
	require.Equal(t, "https://s3.example.com/transcripts/abc123.vtt?sig=1", second.Exports[subtitle.VTT])
}

func TestArchiveRewritesEditedTranscript(t *testing.T) {
	store := &fakeStore{}
	objects := &fakeObjects{}
	a := New(store, objects, time.Minute, log.NewStdLogger(io.Discard))

	_, err := a.Archive(context.Background(), doneItem())
	require.NoError(t, err)

	edited := doneItem()
	edited.Segments = []model.Segment{{Start: 0, End: 1, Text: "hello"}}
	receipt, err := a.Archive(context.Background(), edited)
	require.NoError(t, err)
	require.False(t, receipt.Reused)
	require.Equal(t, 4, objects.uploads)
	require.Len(t, store.saved, 2)
	require.Contains(t, objects.objects["transcripts/abc123.srt"], "hello")
}

func TestArchiveReexportsWhenStoredRowLacksKeys(t *testing.T) {
	store := &fakeStore{}
	_, err := New(store, nil, time.Minute, log.NewStdLogger(io.Discard)).Archive(context.Background(), doneItem())
	require.NoError(t, err)

	objects := &fakeObjects{}
	receipt, err := New(store, objects, time.Minute, log.NewStdLogger(io.Discard)).Archive(context.Background(), doneItem())
	require.NoError(t, err)
	require.False(t, receipt.Reused)
	require.Equal(t, 2, objects.uploads)
	require.NotNil(t, store.saved[1].SRTKey)
}

func TestArchiveLookupFailure(t *testing.T) {
	boom := errors.New("connection reset")
	store := &fakeStore{getErr: boom}
	objects := &fakeObjects{}
	a := New(store, objects, time.Minute, log.NewStdLogger(io.Discard))

	_, err := a.Archive(context.Background(), doneItem())
	require.ErrorIs(t, err, boom)
	require.Zero(t, objects.uploads)
	require.Empty(t, store.saved)
}
