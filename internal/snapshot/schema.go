// Package snapshot writes a read-only copy of the vault to SQLite for the
// site renderer: one row per document, its links and its tags.
package snapshot

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path     TEXT PRIMARY KEY,
	title    TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	draft    INTEGER NOT NULL DEFAULT 0,
	created  DATETIME,
	modified DATETIME,
	metadata TEXT NOT NULL DEFAULT '{}',
	body     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS links (
	source   TEXT NOT NULL,
	target   TEXT NOT NULL,
	resolved TEXT NOT NULL DEFAULT '',
	UNIQUE(source, target)
);

CREATE TABLE IF NOT EXISTS tags (
	path TEXT NOT NULL,
	tag  TEXT NOT NULL,
	UNIQUE(path, tag)
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source);
CREATE INDEX IF NOT EXISTS idx_links_resolved ON links(resolved);
CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag);
`

// DB is a snapshot database.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the snapshot database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("snapshot: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("snapshot: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("snapshot: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
