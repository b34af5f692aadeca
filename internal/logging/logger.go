package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a JSON slog logger at the provided level, tagged with the
// service name and environment. An invalid level falls back to info; debug
// also records the source location.
func New(level, service, env string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl.Level() <= slog.LevelDebug,
	})
	logger := slog.New(handler)
	if service != "" {
		logger = logger.With(slog.String("service", service))
	}
	if env != "" {
		logger = logger.With(slog.String("env", env))
	}
	return logger
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
