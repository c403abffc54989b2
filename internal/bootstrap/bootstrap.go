// Package bootstrap wires configured infrastructure for the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/captiondesk/internal/archive"
	"github.com/dharsanguruparan/captiondesk/internal/config"
	"github.com/dharsanguruparan/captiondesk/internal/database"
	"github.com/dharsanguruparan/captiondesk/internal/logging"
	"github.com/dharsanguruparan/captiondesk/internal/repository"
	"github.com/dharsanguruparan/captiondesk/internal/s3storage"
	"github.com/dharsanguruparan/captiondesk/internal/sttclient"
)

// Version is stamped at build time.
var Version = "dev"

// Logger builds the process logger for service.
func Logger(cfg *config.Config, service string) log.Logger {
	return logging.New(logging.Config{Service: service, Version: Version, Level: cfg.LogLevel})
}

// Client builds the STT client from cfg.
func Client(cfg *config.Config, logger log.Logger) (*sttclient.Client, error) {
	return sttclient.New(cfg.APIBase,
		sttclient.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		sttclient.WithResolveBase(cfg.ResolveBase),
		sttclient.WithLogger(logger),
	)
}

// RedisOpt returns the asynq connection options from cfg.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// Archiver connects the archive sinks enabled in cfg. The returned cleanup
// func is never nil.
func Archiver(ctx context.Context, cfg *config.Config, logger log.Logger) (*archive.Archiver, func(), error) {
	cleanup := func() {}
	var (
		store   archive.TranscriptStore
		objects archive.ObjectStore
	)
	if cfg.ArchiveEnabled() {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect database: %w", err)
		}
		cleanup = pool.Close
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		store = repository.NewTranscriptRepository(pool)
	}
	if cfg.ExportEnabled() {
		s, err := s3storage.New(cfg)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			cleanup()
			return nil, func() {}, err
		}
		objects = s
	}
	return archive.New(store, objects, cfg.SignedURLTTL, logger), cleanup, nil
}
