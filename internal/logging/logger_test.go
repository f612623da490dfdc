// Package logging provides unit tests for the structured logger.
package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// decodeLast decodes the last JSON line written to buf.
func decodeLast(t *testing.T, buf *bytes.Buffer) LogEntry {
	t.Helper()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		t.Fatal("Expected at least one log line")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("Failed to decode log line: %v", err)
	}
	return entry
}

// TestInfoEntry tests that Info produces a well-formed JSON entry.
func TestInfoEntry(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	l.Info("sync pass completed", map[string]interface{}{
		"collection": "products",
		"pulled":     float64(3),
	})

	entry := decodeLast(t, &buf)

	if entry.Level != "INFO" {
		t.Errorf("Expected INFO, got %s", entry.Level)
	}
	if entry.Message != "sync pass completed" {
		t.Errorf("Unexpected message %q", entry.Message)
	}
	if entry.Context["collection"] != "products" {
		t.Errorf("Expected collection context, got %v", entry.Context)
	}
	if entry.Timestamp == "" {
		t.Error("Expected timestamp to be set")
	}
}

// TestMinLevelFilter tests that entries below the minimum level are
// suppressed.
func TestMinLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("noise")
	l.Info("still noise")

	if buf.Len() != 0 {
		t.Errorf("Expected no output below WARN, got %q", buf.String())
	}

	l.Warn("kept")
	if buf.Len() == 0 {
		t.Error("Expected WARN to be logged")
	}
}

// TestErrorWithCode tests error and code serialization.
func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	l.ErrorWithCode("push failed", "TRANSIENT_NETWORK_ERROR",
		errors.New("connection reset"),
		map[string]interface{}{"collection": "transactions"})

	entry := decodeLast(t, &buf)

	if entry.Code != "TRANSIENT_NETWORK_ERROR" {
		t.Errorf("Expected code, got %q", entry.Code)
	}
	if entry.Error != "connection reset" {
		t.Errorf("Expected error string, got %q", entry.Error)
	}
}

// TestMergeContext tests merging of multiple context maps.
func TestMergeContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	l.Info("merged",
		map[string]interface{}{"a": float64(1)},
		map[string]interface{}{"b": float64(2)})

	entry := decodeLast(t, &buf)

	if entry.Context["a"] != float64(1) || entry.Context["b"] != float64(2) {
		t.Errorf("Expected merged context, got %v", entry.Context)
	}
}
