package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Execer runs a statement without returning rows. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the transcripts table if needed.
func EnsureSchema(ctx context.Context, db Execer) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS transcripts (
	id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	media_url TEXT NOT NULL DEFAULT '',
	subtitle_url TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT '',
	model_size TEXT NOT NULL DEFAULT '',
	segments JSONB NOT NULL DEFAULT '[]'::jsonb,
	vtt_key TEXT,
	srt_key TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_updated_at ON transcripts(updated_at);`
	_, err := db.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
