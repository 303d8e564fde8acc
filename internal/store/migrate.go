// Package store provides the durable Local Record Store.
package store

import (
	"fmt"
	"time"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
)

// migration is one versioned schema step. Statements run in order inside a
// single transaction together with the schema_migrations bookkeeping row.
type migration struct {
	version     int
	description string
	statements  []string
}

// Statements live in code rather than .sql files: the store is a library
// opened from tests and the daemon alike, and must not depend on a
// migrations directory being shipped next to the binary.
var migrations = []migration{
	{
		version:     1,
		description: "record store, sync queue, failed queue, anomaly log",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS records (
				table_name TEXT NOT NULL,
				id         TEXT NOT NULL,
				user_id    TEXT NOT NULL,
				org_id     TEXT NOT NULL DEFAULT '',
				payload    TEXT NOT NULL,
				updated_at INTEGER NOT NULL,
				PRIMARY KEY (table_name, id)
			);`,
			`CREATE INDEX IF NOT EXISTS idx_records_scope
				ON records (table_name, user_id);`,
			`CREATE TABLE IF NOT EXISTS pending_changes (
				seq         INTEGER PRIMARY KEY AUTOINCREMENT,
				entity_id   TEXT NOT NULL,
				op          TEXT NOT NULL,
				table_name  TEXT NOT NULL,
				payload     TEXT NOT NULL DEFAULT '',
				user_id     TEXT NOT NULL,
				org_id      TEXT NOT NULL DEFAULT '',
				retry_count INTEGER NOT NULL DEFAULT 0,
				last_error  TEXT NOT NULL DEFAULT '',
				created_at  INTEGER NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS failed_changes (
				seq         INTEGER PRIMARY KEY AUTOINCREMENT,
				entity_id   TEXT NOT NULL,
				op          TEXT NOT NULL,
				table_name  TEXT NOT NULL,
				payload     TEXT NOT NULL DEFAULT '',
				user_id     TEXT NOT NULL,
				org_id      TEXT NOT NULL DEFAULT '',
				retry_count INTEGER NOT NULL DEFAULT 0,
				reason      TEXT NOT NULL,
				created_at  INTEGER NOT NULL,
				failed_at   INTEGER NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS sync_anomalies (
				id          TEXT PRIMARY KEY,
				table_name  TEXT NOT NULL,
				entity_id   TEXT NOT NULL,
				kind        TEXT NOT NULL,
				detail      TEXT NOT NULL DEFAULT '',
				detected_at INTEGER NOT NULL
			);`,
		},
	},
}

// migrate applies all pending migrations in version order.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY CHECK(version > 0),
			applied_at  INTEGER NOT NULL CHECK(applied_at > 0),
			description TEXT NOT NULL CHECK(length(description) > 0)
		);`); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to initialize schema_migrations", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to read schema version", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return apperrors.Wrap(apperrors.ErrMigration, "failed to begin migration transaction", err)
		}

		for _, stmt := range m.statements {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return apperrors.Wrap(apperrors.ErrMigration,
					fmt.Sprintf("migration %d (%s) failed", m.version, m.description), err)
			}
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.version, time.Now().Unix(), m.description); err != nil {
			tx.Rollback()
			return apperrors.Wrap(apperrors.ErrMigration, "failed to record migration", err)
		}
		if err := tx.Commit(); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration, "failed to commit migration", err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (s *Store) SchemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}
