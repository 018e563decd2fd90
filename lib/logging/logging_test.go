package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestTimestampsAreUTC(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("dome", &buf, Options{JSON: true})

	before := time.Now().UTC().Truncate(time.Second)
	logger.Info("shutter closed")
	after := time.Now().UTC().Add(time.Second)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Log output is not valid JSON: %v", err)
	}

	raw, ok := entry["time"].(string)
	if !ok {
		t.Fatalf("Expected a time field, got %v", entry)
	}
	ts, err := time.Parse(TimeFormat, raw)
	if err != nil {
		t.Fatalf("Timestamp %q does not match layout %q: %v", raw, TimeFormat, err)
	}
	if ts.Before(before) || ts.After(after) {
		t.Errorf("Timestamp %v outside expected window [%v, %v]", ts, before, after)
	}
}

func TestLoggerName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("conditions", &buf, Options{})

	logger.Info("clouds incoming")

	if !strings.Contains(buf.String(), "logger=conditions") {
		t.Errorf("Expected the logger name in the output, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("mount", &buf, Options{Level: slog.LevelWarn})

	logger.Info("slewing")
	if buf.Len() != 0 {
		t.Errorf("Info should be filtered at warn level, got %q", buf.String())
	}

	logger.Warn("slew limit reached")
	if buf.Len() == 0 {
		t.Error("Warn should be emitted at warn level")
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("GTECS_LOG_LEVEL", "debug")
	if lvl := levelFromEnv(); lvl != slog.LevelDebug {
		t.Errorf("Expected debug, got %v", lvl)
	}

	t.Setenv("GTECS_LOG_LEVEL", "nonsense")
	if lvl := levelFromEnv(); lvl != slog.LevelInfo {
		t.Errorf("Expected the info fallback, got %v", lvl)
	}
}
