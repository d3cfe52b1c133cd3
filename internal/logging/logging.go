// Package logging builds the daemon's slog logger.
//
// Output goes to stderr as text (default) or JSON. Besides the standard
// slog levels it defines LevelTrace for the noisiest adapter diagnostics.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sweeney/cec-dpms/internal/config"
)

// LevelTrace sits below debug and carries per-frame transport detail.
const LevelTrace = slog.Level(-8)

// TimeFormat is the timestamp layout used by the text handler.
const TimeFormat = "2006-01-02, 15:04:05.000"

// New creates a logger on stderr. debug forces at least debug level.
func New(cfg config.LoggingConfig, debug bool) *slog.Logger {
	return NewWithWriter(os.Stderr, cfg, debug)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, debug bool) *slog.Logger {
	level := parseLevel(cfg.Level)
	if debug && level > slog.LevelDebug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// parseLevel converts a level name to slog.Level. Unknown names are info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
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

// replaceAttr names the trace level and applies TimeFormat.
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
			return slog.String(slog.LevelKey, "TRACE")
		}
	case slog.TimeKey:
		if t := a.Value.Time(); !t.IsZero() {
			return slog.String(slog.TimeKey, t.Format(TimeFormat))
		}
	}
	return a
}

// Trace logs at LevelTrace.
func Trace(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelTrace, msg, args...)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
