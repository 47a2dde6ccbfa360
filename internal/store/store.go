// Package store owns the durable state shared across process
// restarts: the entitlement cache and the telemetry sync queue. Every
// operation is a single SQL statement so concurrent processes need no
// lock beyond SQLite's own.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entitlements (
	credential_hash TEXT PRIMARY KEY,
	tier            TEXT NOT NULL,
	valid_until     INTEGER,
	features        TEXT NOT NULL DEFAULT '[]',
	last_validated  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_queue (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	payload     BLOB NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT,
	enqueued_at INTEGER NOT NULL
);
`

// Store wraps the SQLite database holding entitlements and the sync
// queue. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory if needed, opens (or creates) the
// database, and applies the schema idempotently.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
