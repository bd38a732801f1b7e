package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/paravault/internal/models"
)

// OutLink is one outgoing link of an entry. Path is empty for a broken link.
type OutLink struct {
	Target string `json:"target"`
	Path   string `json:"path,omitempty"`
}

// Entry is the renderer's view of one document.
type Entry struct {
	Path     string          `json:"path"`
	Title    string          `json:"title"`
	Category models.Category `json:"category"`
	Draft    bool            `json:"draft"`
	Metadata models.Metadata `json:"metadata"`
	Body     string          `json:"body"`
	Outgoing []OutLink       `json:"outgoing"`
	Incoming []string        `json:"incoming"`
}

// Row is a document row read back from a snapshot.
type Row struct {
	Path     string
	Title    string
	Category string
	Draft    bool
	Modified time.Time
}

// Replace swaps the whole snapshot for entries in one transaction.
func (db *DB) Replace(ctx context.Context, entries []Entry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, table := range []string{"links", "tags", "documents"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("snapshot: clear %s: %w", table, err)
		}
	}

	docStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (path, title, category, draft, created, modified, metadata, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("snapshot: prepare document insert: %w", err)
	}
	defer docStmt.Close()
	linkStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO links (source, target, resolved) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("snapshot: prepare link insert: %w", err)
	}
	defer linkStmt.Close()
	tagStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO tags (path, tag) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("snapshot: prepare tag insert: %w", err)
	}
	defer tagStmt.Close()

	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("snapshot: encode metadata %s: %w", e.Path, err)
		}
		if _, err := docStmt.ExecContext(ctx, e.Path, e.Title, string(e.Category), e.Draft,
			nullTime(e.Metadata.Created), nullTime(e.Metadata.Modified), string(meta), e.Body); err != nil {
			return fmt.Errorf("snapshot: insert document %s: %w", e.Path, err)
		}
		for _, l := range e.Outgoing {
			if _, err := linkStmt.ExecContext(ctx, e.Path, l.Target, l.Path); err != nil {
				return fmt.Errorf("snapshot: insert link %s: %w", e.Path, err)
			}
		}
		for _, tag := range e.Metadata.Tags {
			if _, err := tagStmt.ExecContext(ctx, e.Path, tag); err != nil {
				return fmt.Errorf("snapshot: insert tag %s: %w", e.Path, err)
			}
		}
	}
	return tx.Commit()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// Export writes entries to the snapshot database at dsn, replacing its
// previous contents.
func Export(ctx context.Context, dsn string, entries []Entry) error {
	db, err := Open(dsn)
	if err != nil {
		return err
	}
	if err := db.Replace(ctx, entries); err != nil {
		db.Close()
		return err
	}
	return db.Close()
}

// Document returns one document row, or nil if path is not in the snapshot.
func (db *DB) Document(ctx context.Context, path string) (*Row, error) {
	var (
		r        Row
		modified sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT path, title, category, draft, modified FROM documents WHERE path = ?`, path,
	).Scan(&r.Path, &r.Title, &r.Category, &r.Draft, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: document: %w", err)
	}
	r.Modified = modified.Time
	return &r, nil
}

// Backlinks returns the sources whose links resolve to path.
func (db *DB) Backlinks(ctx context.Context, path string) ([]string, error) {
	return db.strings(ctx, `SELECT source FROM links WHERE resolved = ? ORDER BY source`, path)
}

// Tagged returns the documents carrying tag.
func (db *DB) Tagged(ctx context.Context, tag string) ([]string, error) {
	return db.strings(ctx, `SELECT path FROM tags WHERE tag = ? ORDER BY path`, tag)
}

// BrokenLinks returns every link with no resolved document.
func (db *DB) BrokenLinks(ctx context.Context) ([]models.Link, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT source, target FROM links WHERE resolved = '' ORDER BY source, target`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: broken links: %w", err)
	}
	defer rows.Close()

	var out []models.Link
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.Source, &l.Target); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (db *DB) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("snapshot: query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
