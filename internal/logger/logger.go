package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/altafino/attachment-fetcher/internal/types"
	"github.com/golang-cz/devslog"
)

// Setup creates a new logger based on configuration
func Setup(cfg *types.Config) *slog.Logger {
	return New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.IncludeCaller)
}

// New creates a logger writing to w. format is text, json or dev.
func New(w io.Writer, level, format string, includeCaller bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: includeCaller,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "dev":
		handler = devslog.NewHandler(w, &devslog.Options{
			HandlerOptions:    opts,
			MaxSlicePrintSize: 10,
			SortKeys:          true,
			NewLineAfterLog:   true,
		})
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
