// Package logging builds the kratos logger shared by the CLI and the worker.
package logging

import (
	"io"
	"os"

	"github.com/go-kratos/kratos/v2/log"
)

// Config captures metadata used to annotate log lines.
type Config struct {
	Service string
	Version string
	Level   string
	Output  io.Writer
}

// New returns a leveled logger writing key/value lines to cfg.Output
// (stderr when nil).
func New(cfg Config) log.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Service == "" {
		cfg.Service = "captiondesk"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	logger := log.With(
		log.NewStdLogger(out),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service", cfg.Service,
		"version", cfg.Version,
	)
	return log.NewFilter(logger, log.FilterLevel(log.ParseLevel(cfg.Level)))
}
