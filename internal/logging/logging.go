package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init installs the process-wide slog logger. LOG_LEVEL overrides the given
// default level; LOG_FORMAT=json switches to the JSON handler for log
// shippers.
func Init(defaultLevel slog.Level) *slog.Logger {
	logger := New(os.Stderr, defaultLevel, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)
	return logger
}

// New builds a logger without touching process state.
func New(w io.Writer, defaultLevel slog.Level, levelName, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(levelName, defaultLevel)}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel understands the same names the CLI always accepted.
func ParseLevel(name string, fallback slog.Level) slog.Level {
	switch name {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}
