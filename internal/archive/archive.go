// Package archive persists finished transcripts: the segment data goes to
// PostgreSQL and rendered subtitle files go to the export bucket.
package archive

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/dharsanguruparan/captiondesk/internal/model"
	"github.com/dharsanguruparan/captiondesk/internal/repository"
	"github.com/dharsanguruparan/captiondesk/internal/subtitle"
)

// ErrNotDone is returned for items without a finished transcription.
var ErrNotDone = errors.New("item has no finished transcript")

// TranscriptStore is implemented by repository.TranscriptRepository. Get must
// wrap repository.ErrNotFound when no row exists for id.
type TranscriptStore interface {
	Save(ctx context.Context, t *repository.Transcript) error
	Get(ctx context.Context, id string) (*repository.Transcript, error)
}

// ObjectStore is implemented by s3storage.Storage.
type ObjectStore interface {
	UploadSubtitle(ctx context.Context, objectKey string, data []byte, contentType string) error
	PresignSubtitleURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

// Receipt describes what an Archive call stored.
type Receipt struct {
	ID    string
	Saved bool
	// Reused is set when an identical row was already archived; nothing was
	// uploaded or written and Keys/Exports point at the stored objects.
	Reused  bool
	Keys    map[subtitle.Format]string
	Exports map[subtitle.Format]string
}

// Archiver writes finished items to whichever sinks are configured. Either
// sink may be nil.
type Archiver struct {
	store   TranscriptStore
	objects ObjectStore
	ttl     time.Duration
	log     *log.Helper
}

// New constructs an Archiver.
func New(store TranscriptStore, objects ObjectStore, ttl time.Duration, logger log.Logger) *Archiver {
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &Archiver{
		store:   store,
		objects: objects,
		ttl:     ttl,
		log:     log.NewHelper(log.With(logger, "module", "archive")),
	}
}

// Enabled reports whether at least one sink is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && (a.store != nil || a.objects != nil)
}

// ObjectKey is the export object name for an item and format.
func ObjectKey(id string, f subtitle.Format) string {
	return fmt.Sprintf("transcripts/%s.%s", id, f)
}

// Archive exports item's subtitles and saves its transcript row. Exports run
// first so the row records their keys. When the store already holds the same
// transcript (same segments, language, model and URLs, with export keys for
// every configured format) the stored row is reused: only fresh download links
// are presigned.
func (a *Archiver) Archive(ctx context.Context, item model.UploadItem) (*Receipt, error) {
	if item.Status != model.StatusDone {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotDone, item.ID, item.Status)
	}
	receipt := &Receipt{
		ID:      item.ID,
		Keys:    map[subtitle.Format]string{},
		Exports: map[subtitle.Format]string{},
	}
	row := repository.FromItem(item)
	if a.store != nil {
		existing, err := a.store.Get(ctx, item.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return receipt, fmt.Errorf("archive %s: %w", item.ID, err)
		case a.unchanged(existing, row):
			return a.reuse(ctx, existing, receipt)
		}
	}
	if a.objects != nil {
		for _, f := range []subtitle.Format{subtitle.VTT, subtitle.SRT} {
			key, link, err := a.export(ctx, item, f)
			if err != nil {
				return receipt, err
			}
			receipt.Keys[f] = key
			receipt.Exports[f] = link
			switch f {
			case subtitle.VTT:
				row.VTTKey = &key
			case subtitle.SRT:
				row.SRTKey = &key
			}
		}
	}
	if a.store != nil {
		if err := a.store.Save(ctx, row); err != nil {
			return receipt, fmt.Errorf("archive %s: %w", item.ID, err)
		}
		receipt.Saved = true
	}
	a.log.WithContext(ctx).Infof("archived %s: saved=%t exports=%d", item.ID, receipt.Saved, len(receipt.Exports))
	return receipt, nil
}

func (a *Archiver) export(ctx context.Context, item model.UploadItem, f subtitle.Format) (string, string, error) {
	body, err := subtitle.Render(f, item.Segments)
	if err != nil {
		return "", "", err
	}
	key := ObjectKey(item.ID, f)
	if err := a.objects.UploadSubtitle(ctx, key, []byte(body), f.ContentType()); err != nil {
		return "", "", fmt.Errorf("export %s: %w", f, err)
	}
	link, err := a.objects.PresignSubtitleURL(ctx, key, a.ttl)
	if err != nil {
		return key, "", fmt.Errorf("export %s: %w", f, err)
	}
	return key, link, nil
}

// unchanged reports whether stored already holds everything row would write.
func (a *Archiver) unchanged(stored, row *repository.Transcript) bool {
	if stored.FileName != row.FileName ||
		stored.MediaURL != row.MediaURL ||
		stored.SubtitleURL != row.SubtitleURL ||
		stored.Language != row.Language ||
		stored.ModelProfile != row.ModelProfile ||
		!slices.Equal(stored.Segments, row.Segments) {
		return false
	}
	if a.objects != nil && (stored.VTTKey == nil || stored.SRTKey == nil) {
		return false
	}
	return true
}

func (a *Archiver) reuse(ctx context.Context, stored *repository.Transcript, receipt *Receipt) (*Receipt, error) {
	receipt.Saved = true
	receipt.Reused = true
	if a.objects != nil {
		for f, key := range map[subtitle.Format]*string{subtitle.VTT: stored.VTTKey, subtitle.SRT: stored.SRTKey} {
			link, err := a.objects.PresignSubtitleURL(ctx, *key, a.ttl)
			if err != nil {
				return receipt, fmt.Errorf("export %s: %w", f, err)
			}
			receipt.Keys[f] = *key
			receipt.Exports[f] = link
		}
	}
	a.log.WithContext(ctx).Infof("%s already archived, reusing stored row", stored.ID)
	return receipt, nil
}
