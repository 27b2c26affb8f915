package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger and installs it as the slog default.
// format is "json" (default) or "text"; level is debug|info|warn|error.
func New(level, format string) *slog.Logger {
	return newLogger(os.Stdout, level, format)
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		opts.AddSource = true
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// ParseLevel falls back to info for anything it does not recognize.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
