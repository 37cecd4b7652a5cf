// Package logging provides the process-wide structured logger. Every
// record carries a build_number attribute, mirroring the origin's
// practice of stamping every log event with the running build.
package logging

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

var (
	once   sync.Once
	base   *slog.Logger
	ctxKey = contextKey{}
)

type contextKey struct{}

// BuildNumber is populated at link time or left as "dev".
var BuildNumber = "dev"

func initBase() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	base = slog.New(handler).With("build_number", BuildNumber)
}

// Base returns the process-wide logger.
func Base() *slog.Logger {
	once.Do(initBase)
	return base
}

// WithContext attaches a logger to ctx, to be retrieved by FromContext.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey, logger)
}

// FromContext returns the logger attached to ctx, or the base logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return Base()
}
