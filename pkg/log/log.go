package log

import (
	"context"
	"fmt"
	stdio "io"
	"log/slog"
	"strings"

	"github.com/go-logr/logr"
)

func Context(ctx context.Context, logger *slog.Logger) context.Context {
	return logr.NewContextWithSlogLogger(ctx, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default() if there
// isn't one.
func FromContext(ctx context.Context) *slog.Logger {
	if logger := logr.FromContextAsSlogLogger(ctx); logger != nil {
		return logger
	}
	return slog.Default()
}

// New builds a logger writing to w. Format is `text` or `json`; level is
// one of `debug`, `info`, `warn` or `error`.
func New(w stdio.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level `%s`: %w", level, err)
	}
	opts := slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, &opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &opts)), nil
	default:
		return nil, fmt.Errorf(
			"log format `%s`: wanted `text` or `json`",
			format,
		)
	}
}
