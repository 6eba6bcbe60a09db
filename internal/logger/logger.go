package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New constructs a logger with the desired level and format.
// LOG_FORMAT=json switches to the JSON handler; anything else keeps text output.
func New(service string) *slog.Logger {
	return newWithWriter(os.Stdout, service, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// Discard returns a logger that drops everything. Handy for tests and optional deps.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWithWriter(w io.Writer, service, rawLevel, rawFormat string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(rawLevel)}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(rawFormat), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", service)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
