// Package store provides database schema migration management.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "github.com/hweilin/tillsync/internal/errors"
)

// Migration represents an applied schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// Migrator performs additive store creation: one table per collection,
// recorded in schema_migrations. This is the "schema upgrade side
// effect" the rest of the engine only detects, never triggers.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	if _, err := m.db.Exec(query); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to initialize migrations table", err)
	}
	return nil
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrMigration, "failed to read schema version", err)
	}
	return version, nil
}

// AppliedMigrations returns all applied migrations in version order.
func (m *Migrator) AppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query(
		"SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to list migrations", err)
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to scan migration row", err)
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		migrations = append(migrations, mig)
	}
	return migrations, rows.Err()
}

// EnsureCollections creates the table for every named collection that
// does not exist yet and records one migration row per new table.
// Existing tables are left untouched.
func (m *Migrator) EnsureCollections(collections ...string) error {
	if err := m.Initialize(); err != nil {
		return err
	}

	version, err := m.CurrentVersion()
	if err != nil {
		return err
	}

	for _, collection := range collections {
		table, err := tableFor(collection)
		if err != nil {
			return err
		}

		var n int
		err = m.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrMigration, "schema lookup failed", err)
		}
		if n > 0 {
			continue
		}

		ddl := fmt.Sprintf(`
		CREATE TABLE %s (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at TEXT
		);`, table)

		if _, err := m.db.Exec(ddl); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("failed to create collection %q", collection), err)
		}

		version++
		sum := sha256.Sum256([]byte(ddl))
		_, err = m.db.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
			version, time.Now().Unix(),
			fmt.Sprintf("create collection %s", collection),
			hex.EncodeToString(sum[:]))
		if err != nil {
			return apperrors.Wrap(apperrors.ErrMigration, "failed to record migration", err)
		}
	}

	return nil
}
