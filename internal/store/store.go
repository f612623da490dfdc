// Package store provides the local entity store: typed CRUD over named
// collections backed by an embedded SQLite database. Each collection is
// one table holding record JSON keyed by id; collections are created by
// the Migrator, never implicitly by reads or writes.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	apperrors "github.com/hweilin/tillsync/internal/errors"
	"github.com/hweilin/tillsync/internal/models"
)

// DBFileName is the SQLite database file created under the data dir.
const DBFileName = "tillsync.db"

// Store wraps the SQLite connection with collection-level CRUD.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database under dataDir with:
// - WAL mode for concurrent reads alongside the single writer
// - foreign key constraints enabled
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for the Migrator.
func (s *Store) DB() *sql.DB {
	return s.db
}

var collectionNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// tableFor maps a collection name to its SQLite table. Names are
// validated because they are interpolated into DDL/DML text.
func tableFor(collection string) (string, error) {
	if !collectionNameRegex.MatchString(collection) {
		return "", apperrors.Newf(apperrors.ErrInvalid, "invalid collection name %q", collection)
	}
	return "c_" + collection, nil
}

// classify maps driver errors onto the engine's error taxonomy. A
// missing table means the local schema is behind the expected version;
// callers surface that and retry after the migrator has run.
func classify(collection string, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return apperrors.Wrap(apperrors.ErrCollectionNotFound,
			fmt.Sprintf("collection %q does not exist (schema upgrade required)", collection), err)
	}
	return apperrors.Wrap(apperrors.ErrDatabase,
		fmt.Sprintf("collection %q operation failed", collection), err)
}

// GetAll returns every record in a collection, ordered by id.
func (s *Store) GetAll(collection string) ([]models.Record, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(fmt.Sprintf("SELECT data FROM %s ORDER BY id", table))
	if err != nil {
		return nil, classify(collection, err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, classify(collection, err)
		}
		var rec models.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase,
				fmt.Sprintf("corrupt record in collection %q", collection), err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(collection, err)
	}

	return records, nil
}

// Get returns the record with the given id, or (nil, nil) if absent.
func (s *Store) Get(collection, id string) (models.Record, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}

	var raw string
	err = s.db.QueryRow(fmt.Sprintf("SELECT data FROM %s WHERE id = ?", table), id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify(collection, err)
	}

	var rec models.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase,
			fmt.Sprintf("corrupt record %q in collection %q", id, collection), err)
	}
	return rec, nil
}

// Put upserts a record keyed by its id. Applying the same record twice
// replaces, never duplicates; at most one row per id is ever current.
func (s *Store) Put(collection string, rec models.Record) error {
	table, err := tableFor(collection)
	if err != nil {
		return err
	}

	id := rec.ID()
	if id == "" {
		return apperrors.New(apperrors.ErrValidation, "record has no id")
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "record not serializable", err)
	}

	var updatedAt interface{}
	if ts, ok := rec[models.FieldUpdatedAt].(string); ok {
		updatedAt = ts
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, table)
	_, err = s.db.Exec(query, id, string(raw), updatedAt)
	return classify(collection, err)
}

// Delete removes the record with the given id. Deleting an absent id
// is not an error (idempotent).
func (s *Store) Delete(collection, id string) error {
	table, err := tableFor(collection)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	return classify(collection, err)
}

// Count returns the number of records currently in a collection.
func (s *Store) Count(collection string) (int, error) {
	table, err := tableFor(collection)
	if err != nil {
		return 0, err
	}

	var n int
	err = s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n)
	if err != nil {
		return 0, classify(collection, err)
	}
	return n, nil
}

// HasCollection reports whether a collection's table exists yet.
func (s *Store) HasCollection(collection string) (bool, error) {
	table, err := tableFor(collection)
	if err != nil {
		return false, err
	}

	var n int
	err = s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrDatabase, "schema lookup failed", err)
	}
	return n > 0, nil
}
