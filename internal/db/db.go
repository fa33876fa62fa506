// Package db provides the sqlite audit mirror for trk.
//
// The YAML documents and the JSONL ledger are the source of truth; the
// database is a queryable mirror of everything that happened, fed one event
// at a time as commands run and rebuildable from the ledger at any time.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file name inside the .trk directory.
const FileName = "trk.db"

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	track_id   TEXT NOT NULL,
	unit       TEXT NOT NULL,
	event_type TEXT NOT NULL,
	commit_sha TEXT,
	detail     TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_track ON events(track_id, id);
CREATE INDEX IF NOT EXISTS idx_events_unit ON events(unit, id);
CREATE INDEX IF NOT EXISTS idx_events_commit ON events(commit_sha);
`

// DB wraps the project event database.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the
// schema. The parent directory is created if missing.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer; busy timeout covers overlapping trk invocations.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &DB{db: sqlDB, path: path}, nil
}

// OpenInMemory opens an isolated in-memory database. Intended for tests.
func OpenInMemory() (*DB, error) {
	return Open(":memory:")
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}
