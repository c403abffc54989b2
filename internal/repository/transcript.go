package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/captiondesk/internal/model"
)

// ErrNotFound is returned when no transcript exists for an id.
var ErrNotFound = errors.New("transcript not found")

// Transcript represents a row in the transcripts table.
type Transcript struct {
	ID           string             `json:"id"`
	FileName     string             `json:"fileName"`
	Size         int64              `json:"size"`
	MediaURL     string             `json:"mediaUrl"`
	SubtitleURL  string             `json:"subtitleUrl"`
	Language     string             `json:"lang"`
	ModelProfile model.ModelProfile `json:"modelSize"`
	Segments     []model.Segment    `json:"segments"`
	VTTKey       *string            `json:"vttKey,omitempty"`
	SRTKey       *string            `json:"srtKey,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// FromItem copies the archivable fields of a finished upload item.
func FromItem(item model.UploadItem) *Transcript {
	segments := item.Segments
	if segments == nil {
		segments = []model.Segment{}
	}
	return &Transcript{
		ID:           item.ID,
		FileName:     item.Name,
		Size:         item.Size,
		MediaURL:     item.Src,
		SubtitleURL:  item.SubtitleURL,
		Language:     item.Language,
		ModelProfile: item.ModelProfile,
		Segments:     segments,
	}
}

// DB is the part of *pgxpool.Pool the repository needs. Tests substitute a
// pgxmock pool.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TranscriptRepository wraps the SQL used by the archiver.
type TranscriptRepository struct {
	pool DB
}

// NewTranscriptRepository constructs a repository.
func NewTranscriptRepository(pool DB) *TranscriptRepository {
	return &TranscriptRepository{pool: pool}
}

// Save inserts a transcript or replaces the stored result for the same id.
// Export keys are only overwritten when set.
func (r *TranscriptRepository) Save(ctx context.Context, t *Transcript) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transcripts (id, file_name, size_bytes, media_url, subtitle_url, language, model_size, segments, vtt_key, srt_key, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			media_url = EXCLUDED.media_url,
			subtitle_url = EXCLUDED.subtitle_url,
			language = EXCLUDED.language,
			model_size = EXCLUDED.model_size,
			segments = EXCLUDED.segments,
			vtt_key = COALESCE(EXCLUDED.vtt_key, transcripts.vtt_key),
			srt_key = COALESCE(EXCLUDED.srt_key, transcripts.srt_key),
			updated_at = EXCLUDED.updated_at
	`, t.ID, t.FileName, t.Size, t.MediaURL, t.SubtitleURL, t.Language, string(t.ModelProfile), t.Segments, t.VTTKey, t.SRTKey, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	return nil
}

// Get returns a transcript by id.
func (r *TranscriptRepository) Get(ctx context.Context, id string) (*Transcript, error) {
	var (
		t       Transcript
		profile string
		vttKey  sql.NullString
		srtKey  sql.NullString
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id, file_name, size_bytes, media_url, subtitle_url, language, model_size, segments, vtt_key, srt_key, created_at, updated_at
		FROM transcripts WHERE id=$1
	`, id)
	if err := row.Scan(&t.ID, &t.FileName, &t.Size, &t.MediaURL, &t.SubtitleURL, &t.Language, &profile, &t.Segments, &vttKey, &srtKey, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("select transcript: %w", err)
	}
	t.ModelProfile = model.ModelProfile(profile)
	if vttKey.Valid {
		key := vttKey.String
		t.VTTKey = &key
	}
	if srtKey.Valid {
		key := srtKey.String
		t.SRTKey = &key
	}
	return &t, nil
}
