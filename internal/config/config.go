// Package config centralizes how captiondesk reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dharsanguruparan/captiondesk/internal/model"
)

// Config represents runtime configuration for the CLI and the worker. Fields
// are grouped by the component that consumes them; an empty DatabaseURL or
// S3Endpoint simply leaves that archive sink switched off.
type Config struct {
	// APIBase is where the STT service listens. ResolveBase is prefixed onto
	// relative media and subtitle references the service returns ("" keeps
	// them relative).
	APIBase     string
	ResolveBase string
	// HTTPTimeout bounds a whole request, so it must cover a full upload plus
	// the transcription itself.
	HTTPTimeout time.Duration

	// Language and ModelProfile are the initial transcription options.
	Language     string
	ModelProfile model.ModelProfile
	LogLevel     string

	DatabaseURL string

	// Redis settings are shared by the enqueue command and the worker.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Workers       int

	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3UseSSL     bool
	S3Region     string
	ExportBucket string
	SignedURLTTL time.Duration
}

const (
	// Every variable is namespaced so the tool can share a .env with the
	// STT service without clashing.
	envPrefix = "CAPTIONDESK_"

	defaultAPIBase      = "http://127.0.0.1:8000"
	defaultHTTPTimeout  = 30 * time.Minute
	defaultLogLevel     = "info"
	defaultRedisAddr    = "127.0.0.1:6379"
	defaultWorkerCount  = 2
	defaultExportBucket = "captiondesk-subtitles"
	defaultSignedTTL    = 15 * time.Minute
)

// Load reads configuration from environment variables falling back to
// defaults. It follows Go's convention of returning (value, error) so callers
// can handle failures rather than panicking.
//
// Before reading the environment, Load applies .env files through godotenv.
// Files named by the caller must all exist and parse; with no names, a
// ./.env is used when present and silently skipped when it is not. godotenv
// never overwrites a variable that is already set, so the real environment
// always wins over file contents.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	apiBase := strings.TrimRight(readEnv("API_BASE", defaultAPIBase), "/")
	cfg := &Config{
		APIBase:       apiBase,
		ResolveBase:   apiBase,
		HTTPTimeout:   parseDuration("HTTP_TIMEOUT", defaultHTTPTimeout),
		Language:      model.NormalizeLanguage(readEnv("LANGUAGE", "")),
		ModelProfile:  parseProfile("MODEL"),
		LogLevel:      readEnv("LOG_LEVEL", defaultLogLevel),
		DatabaseURL:   readEnv("DATABASE_URL", ""),
		RedisAddr:     readEnv("REDIS_ADDR", defaultRedisAddr),
		RedisPassword: readEnv("REDIS_PASSWORD", ""),
		RedisDB:       parseInt("REDIS_DB", 0),
		Workers:       parseInt("WORKERS", defaultWorkerCount),
		S3Endpoint:    readEnv("S3_ENDPOINT", ""),
		S3AccessKey:   readEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:   readEnv("S3_SECRET_KEY", ""),
		S3UseSSL:      parseBool("S3_USE_SSL", false),
		S3Region:      readEnv("S3_REGION", ""),
		ExportBucket:  readEnv("EXPORT_BUCKET", defaultExportBucket),
		SignedURLTTL:  parseDuration("SIGNED_URL_TTL", defaultSignedTTL),
	}
	// An explicitly empty resolve base turns reference resolution off.
	if v, ok := os.LookupEnv(envPrefix + "RESOLVE_BASE"); ok {
		cfg.ResolveBase = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	return cfg, nil
}

// ArchiveEnabled reports whether a transcript database is configured.
func (c *Config) ArchiveEnabled() bool { return c.DatabaseURL != "" }

// ExportEnabled reports whether an object store is configured.
func (c *Config) ExportEnabled() bool { return c.S3Endpoint != "" }

// readEnv returns the prefixed variable, or def when it is unset or blank.
// LookupEnv reports (value, true) when the variable is present, which lets us
// tell "unset" from "set to empty" where that matters (see RESOLVE_BASE).
func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		return v
	}
	return def
}

// parseProfile validates the model size; an unknown name falls back to the
// default instead of failing startup.
func parseProfile(key string) model.ModelProfile {
	profile, err := model.ParseModelProfile(readEnv(key, string(model.DefaultModelProfile)))
	if err != nil {
		return model.DefaultModelProfile
	}
	return profile
}

// parseInt, parseBool and parseDuration treat errors as values: invalid
// input is ignored and the default returned.
func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
