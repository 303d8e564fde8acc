package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// decodeLine unmarshals a single JSON log line.
func decodeLine(t *testing.T, line string) LogEntry {
	t.Helper()
	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v (%q)", err, line)
	}
	return entry
}

// TestLoggerWritesJSON tests that entries are single JSON lines with level and message.
func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug)

	logger.Info("sync started", map[string]interface{}{"pending": 3})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}

	entry := decodeLine(t, lines[0])
	if entry.Level != "INFO" {
		t.Errorf("Level = %q, want INFO", entry.Level)
	}
	if entry.Message != "sync started" {
		t.Errorf("Message = %q, want %q", entry.Message, "sync started")
	}
	if entry.Context["pending"] != float64(3) {
		t.Errorf("Context[pending] = %v, want 3", entry.Context["pending"])
	}
}

// TestLoggerLevelFiltering tests that entries below the minimum level are dropped.
func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelWarn)

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	logger.Error("kept too", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %v", len(lines), lines)
	}
}

// TestLoggerErrorField tests that the error is carried in its own field.
func TestLoggerErrorField(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug)

	logger.Error("drain failed", errors.New("remote unreachable"))

	entry := decodeLine(t, strings.TrimSpace(buf.String()))
	if entry.Error != "remote unreachable" {
		t.Errorf("Error = %q, want %q", entry.Error, "remote unreachable")
	}
}

// TestLoggerMergesContexts tests that multiple context maps are merged.
func TestLoggerMergesContexts(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug)

	logger.Info("merged",
		map[string]interface{}{"a": "1"},
		map[string]interface{}{"b": "2"})

	entry := decodeLine(t, strings.TrimSpace(buf.String()))
	if entry.Context["a"] != "1" || entry.Context["b"] != "2" {
		t.Errorf("Context = %v, want both a and b present", entry.Context)
	}
}
