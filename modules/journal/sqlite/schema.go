package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS calls (
		session_id TEXT    NOT NULL,
		call_id    TEXT    NOT NULL,
		tool       TEXT    NOT NULL,
		args       TEXT    NOT NULL DEFAULT '{}',
		turn       INTEGER NOT NULL DEFAULT 0,
		created_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		PRIMARY KEY (session_id, call_id)
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		session_id    TEXT    NOT NULL,
		seq           INTEGER NOT NULL,
		type          TEXT    NOT NULL,
		call_id       TEXT    NOT NULL DEFAULT '',
		tool          TEXT    NOT NULL DEFAULT '',
		turn          INTEGER NOT NULL DEFAULT 0,
		content       TEXT    NOT NULL DEFAULT '',
		data          TEXT    NOT NULL DEFAULT '',
		error_kind    TEXT    NOT NULL DEFAULT '',
		error_message TEXT    NOT NULL DEFAULT '',
		emitted_at    TEXT    NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_events_call ON events(session_id, call_id)`,
}

// migrate creates or updates the database schema to the latest version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return nil
}
