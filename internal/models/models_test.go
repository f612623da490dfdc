// Package models provides unit tests for the engine data models.
package models

import (
	"testing"
	"time"
)

// TestRecordID tests ID extraction from a record.
func TestRecordID(t *testing.T) {
	r := Record{"id": "p1", "name": "Tea"}

	if r.ID() != "p1" {
		t.Errorf("Expected id p1, got %q", r.ID())
	}
}

// TestRecordIDMissing tests ID extraction when the field is absent or
// not a string.
func TestRecordIDMissing(t *testing.T) {
	if got := (Record{"name": "Tea"}).ID(); got != "" {
		t.Errorf("Expected empty id, got %q", got)
	}

	if got := (Record{"id": 42}).ID(); got != "" {
		t.Errorf("Expected empty id for non-string, got %q", got)
	}
}

// TestRecordTimestamp tests timestamp parsing with fallback.
func TestRecordTimestamp(t *testing.T) {
	r := Record{
		"id":         "p1",
		"updated_at": "2024-01-02T03:04:05Z",
	}

	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if !r.Timestamp().Equal(want) {
		t.Errorf("Expected %v, got %v", want, r.Timestamp())
	}
}

// TestRecordTimestampFallback tests created_at fallback when updated_at
// is missing.
func TestRecordTimestampFallback(t *testing.T) {
	r := Record{
		"id":         "p1",
		"created_at": "2024-01-01T00:00:00Z",
	}

	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !r.Timestamp().Equal(want) {
		t.Errorf("Expected created_at fallback %v, got %v", want, r.Timestamp())
	}
}

// TestRecordTimestampMalformed tests that malformed timestamps report
// the zero time instead of erroring.
func TestRecordTimestampMalformed(t *testing.T) {
	r := Record{
		"id":         "p1",
		"updated_at": "not-a-timestamp",
		"created_at": "also bad",
	}

	if !r.Timestamp().IsZero() {
		t.Errorf("Expected zero time, got %v", r.Timestamp())
	}
}

// TestRecordTimestampLayouts tests the accepted timestamp layouts.
func TestRecordTimestampLayouts(t *testing.T) {
	cases := []string{
		"2024-06-01T10:00:00Z",
		"2024-06-01T10:00:00.123456Z",
		"2024-06-01T10:00:00",
		"2024-06-01 10:00:00",
	}

	for _, raw := range cases {
		r := Record{"updated_at": raw}
		if r.UpdatedAt().IsZero() {
			t.Errorf("Expected %q to parse, got zero time", raw)
		}
	}
}

// TestRecordClone tests that Clone copies the top-level map.
func TestRecordClone(t *testing.T) {
	r := Record{"id": "p1", "stock": 5}
	c := r.Clone()

	c["stock"] = 3

	if r["stock"] != 5 {
		t.Error("Expected clone mutation to not affect original")
	}

	if Record(nil).Clone() != nil {
		t.Error("Expected nil clone of nil record")
	}
}

// TestOperationIsValid tests operation validation.
func TestOperationIsValid(t *testing.T) {
	valid := []Operation{OperationInsert, OperationUpdate, OperationDelete, OperationUpsert}
	for _, op := range valid {
		if !op.IsValid() {
			t.Errorf("Expected %q to be valid", op)
		}
	}

	if Operation("truncate").IsValid() {
		t.Error("Expected truncate to be invalid")
	}
}
