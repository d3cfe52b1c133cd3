package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/cec-dpms/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNew_InfoFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Format: "text", Level: "info"}, false)

	logger.Debug("hidden")
	logger.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("info line missing: %s", out)
	}
}

func TestNew_DebugFlag(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Format: "text", Level: "info"}, true)

	logger.Debug("visible")
	Trace(logger, "still hidden")

	out := buf.String()
	if !strings.Contains(out, "visible") {
		t.Errorf("debug flag should enable debug: %s", out)
	}
	if strings.Contains(out, "still hidden") {
		t.Errorf("debug flag must not enable trace: %s", out)
	}
}

func TestNew_DebugFlagKeepsTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Format: "text", Level: "trace"}, true)

	Trace(logger, "frame")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected TRACE level name: %s", buf.String())
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Format: "json", Level: "info"}, false)

	logger.Info("started", "device", "/dev/cec0")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if entry["msg"] != "started" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["device"] != "/dev/cec0" {
		t.Errorf("device = %v", entry["device"])
	}
	ts, ok := entry["time"].(string)
	if !ok {
		t.Fatalf("time missing: %v", entry)
	}
	if _, err := time.Parse(TimeFormat, ts); err != nil {
		t.Errorf("time %q not in %q: %v", ts, TimeFormat, err)
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("discard logger should not be enabled")
	}
}
