// Package store provides unit tests for the entity store.
package store

import (
	"testing"

	apperrors "github.com/hweilin/tillsync/internal/errors"
	"github.com/hweilin/tillsync/internal/models"
)

// openTestStore opens a store with the products collection created.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := NewMigrator(s.DB()).EnsureCollections("products"); err != nil {
		t.Fatalf("EnsureCollections failed: %v", err)
	}
	return s
}

// TestPutGet tests basic round trip through a collection.
func TestPutGet(t *testing.T) {
	s := openTestStore(t)

	rec := models.Record{
		"id":         "p1",
		"name":       "Tea",
		"stock":      float64(5),
		"updated_at": "2024-01-01T00:00:00Z",
	}
	if err := s.Put("products", rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get("products", "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected record, got nil")
	}
	if got["name"] != "Tea" || got["stock"] != float64(5) {
		t.Errorf("Unexpected record %v", got)
	}
}

// TestGetMissing tests that a missing id yields (nil, nil).
func TestGetMissing(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Get("products", "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing record, got %v", got)
	}
}

// TestPutUpsert tests that Put replaces rather than duplicates.
func TestPutUpsert(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("products", models.Record{"id": "p1", "stock": float64(5)}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put("products", models.Record{"id": "p1", "stock": float64(3)}); err != nil {
		t.Fatalf("Second Put failed: %v", err)
	}

	n, err := s.Count("products")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 record after upsert, got %d", n)
	}

	got, _ := s.Get("products", "p1")
	if got["stock"] != float64(3) {
		t.Errorf("Expected replaced stock 3, got %v", got["stock"])
	}
}

// TestPutWithoutID tests validation of the mandatory id field.
func TestPutWithoutID(t *testing.T) {
	s := openTestStore(t)

	err := s.Put("products", models.Record{"name": "Tea"})
	if err == nil {
		t.Fatal("Expected error for record without id")
	}
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Expected VALIDATION_ERROR, got %v", err)
	}
}

// TestDelete tests delete and its idempotence.
func TestDelete(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("products", models.Record{"id": "p1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete("products", "p1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, _ := s.Get("products", "p1")
	if got != nil {
		t.Error("Expected record gone after delete")
	}

	// deleting again is not an error
	if err := s.Delete("products", "p1"); err != nil {
		t.Errorf("Expected idempotent delete, got %v", err)
	}
}

// TestGetAll tests listing a collection.
func TestGetAll(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"p2", "p1", "p3"} {
		if err := s.Put("products", models.Record{"id": id}); err != nil {
			t.Fatalf("Put %s failed: %v", id, err)
		}
	}

	records, err := s.GetAll("products")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	// ordered by id
	if records[0].ID() != "p1" || records[2].ID() != "p3" {
		t.Errorf("Expected id ordering, got %v %v %v",
			records[0].ID(), records[1].ID(), records[2].ID())
	}
}

// TestCollectionNotFound tests that a missing table surfaces the
// COLLECTION_NOT_FOUND code on every operation.
func TestCollectionNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetAll("appointments"); !apperrors.Is(err, apperrors.ErrCollectionNotFound) {
		t.Errorf("Expected COLLECTION_NOT_FOUND from GetAll, got %v", err)
	}

	err := s.Put("appointments", models.Record{"id": "a1"})
	if !apperrors.Is(err, apperrors.ErrCollectionNotFound) {
		t.Errorf("Expected COLLECTION_NOT_FOUND from Put, got %v", err)
	}

	if err := s.Delete("appointments", "a1"); !apperrors.Is(err, apperrors.ErrCollectionNotFound) {
		t.Errorf("Expected COLLECTION_NOT_FOUND from Delete, got %v", err)
	}
}

// TestInvalidCollectionName tests name validation before SQL assembly.
func TestInvalidCollectionName(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetAll("products; DROP TABLE c_products")
	if !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("Expected INVALID_INPUT, got %v", err)
	}
}

// TestDurability tests that records survive a close/reopen cycle.
func TestDurability(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := NewMigrator(s.DB()).EnsureCollections("products"); err != nil {
		t.Fatalf("EnsureCollections failed: %v", err)
	}
	if err := s.Put("products", models.Record{"id": "p1", "name": "Tea"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get("products", "p1")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got == nil || got["name"] != "Tea" {
		t.Errorf("Expected persisted record, got %v", got)
	}
}

// TestMigratorVersioning tests that each new collection bumps the
// schema version and re-running is a no-op.
func TestMigratorVersioning(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	m := NewMigrator(s.DB())
	if err := m.EnsureCollections("products", "customers"); err != nil {
		t.Fatalf("EnsureCollections failed: %v", err)
	}

	v, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if v != 2 {
		t.Errorf("Expected version 2, got %d", v)
	}

	// applying again must not add migrations
	if err := m.EnsureCollections("products", "customers"); err != nil {
		t.Fatalf("Re-run failed: %v", err)
	}
	if v2, _ := m.CurrentVersion(); v2 != 2 {
		t.Errorf("Expected version unchanged at 2, got %d", v2)
	}

	applied, err := m.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations failed: %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("Expected 2 migration rows, got %d", len(applied))
	}

	ok, err := s.HasCollection("customers")
	if err != nil || !ok {
		t.Errorf("Expected customers collection to exist (ok=%v err=%v)", ok, err)
	}
}
