// Package index provides the SQLite-backed corpus store that case manifests
// are imported into and tree snapshots are loaded from.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS cases (
	id         TEXT PRIMARY KEY,
	manifest   TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS records (
	case_id   TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
	id        TEXT NOT NULL,
	parent_id TEXT NOT NULL DEFAULT '',
	ordinal   INTEGER NOT NULL DEFAULT 0,
	name      TEXT NOT NULL DEFAULT '',
	kind      TEXT NOT NULL DEFAULT '',
	physical  INTEGER NOT NULL DEFAULT 0,
	digest    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (case_id, id)
);

CREATE INDEX IF NOT EXISTS idx_records_parent ON records(case_id, parent_id);
CREATE INDEX IF NOT EXISTS idx_records_digest ON records(case_id, digest);
CREATE INDEX IF NOT EXISTS idx_cases_manifest ON cases(manifest);
`

// DB wraps a sql.DB with corpus store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
