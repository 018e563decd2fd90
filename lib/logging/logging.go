package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// TimeFormat is the timestamp layout used in all log output. Timestamps
// are always UTC: observatory daemons run in local site timezones and
// correlating logs across sites only works on a common clock.
const TimeFormat = "2006/01/02 15:04:05"

// Options controls handler construction.
type Options struct {
	// Level is the minimum level to emit. Defaults to slog.LevelInfo.
	Level slog.Leveler
	// JSON switches from human-readable text to JSON output.
	JSON bool
}

// NewHandler creates a slog handler writing to w with UTC timestamps in
// TimeFormat.
func NewHandler(w io.Writer, opts Options) slog.Handler {
	hopts := &slog.HandlerOptions{
		Level: opts.Level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(TimeFormat))
			}
			return a
		},
	}
	if opts.JSON {
		return slog.NewJSONHandler(w, hopts)
	}
	return slog.NewTextHandler(w, hopts)
}

// NewLogger creates a named logger writing to w. The name identifies the
// daemon or component in shared log aggregation.
func NewLogger(name string, w io.Writer, opts Options) *slog.Logger {
	return slog.New(NewHandler(w, opts)).With("logger", name)
}

// Setup installs a named logger writing to stderr as the process-wide
// default. The level can be overridden with GTECS_LOG_LEVEL
// (debug, info, warn, error).
func Setup(name string) *slog.Logger {
	opts := Options{Level: levelFromEnv()}
	logger := NewLogger(name, os.Stderr, opts)
	slog.SetDefault(logger)
	return logger
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("GTECS_LOG_LEVEL")) {
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
