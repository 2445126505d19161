package changelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sokinpui/pfx.go/model"
)

const dayLayout = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	slug           TEXT NOT NULL,
	title          TEXT NOT NULL,
	day            TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	files_modified TEXT NOT NULL DEFAULT '[]',
	reasoning      TEXT NOT NULL DEFAULT '',
	changes        TEXT NOT NULL DEFAULT '[]',
	notes          TEXT NOT NULL DEFAULT '',
	dispatch_id    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS entries_day_slug ON entries(day, slug);
CREATE TRIGGER IF NOT EXISTS entries_no_update BEFORE UPDATE ON entries
BEGIN SELECT RAISE(ABORT, 'change log is append-only'); END;
CREATE TRIGGER IF NOT EXISTS entries_no_delete BEFORE DELETE ON entries
BEGIN SELECT RAISE(ABORT, 'change log is append-only'); END;
`

// Store is the append-only change log, keyed by day and task slug.
type Store struct {
	db *sql.DB
}

// Open opens or creates the change-log database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing change log %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores e and sets its ID.
func (s *Store) Append(ctx context.Context, e *model.ChangeLogEntry) error {
	if e.Date.IsZero() {
		e.Date = time.Now()
	}
	if e.Slug == "" {
		e.Slug = Slugify(e.Title)
	}
	files, err := json.Marshal(nonNil(e.FilesModified))
	if err != nil {
		return err
	}
	changes, err := json.Marshal(nonNil(e.Changes))
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO entries
		(slug, title, day, created_at, files_modified, reasoning, changes, notes, dispatch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Slug, e.Title, e.Date.Format(dayLayout), e.Date.UTC().Format(time.RFC3339Nano),
		string(files), e.Reasoning, string(changes), e.Notes, e.DispatchID)
	if err != nil {
		return fmt.Errorf("appending change log entry: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Day  time.Time
	Slug string
}

// List returns matching entries in insertion order.
func (s *Store) List(ctx context.Context, f Filter) ([]model.ChangeLogEntry, error) {
	query := `SELECT id, slug, title, created_at, files_modified, reasoning, changes, notes, dispatch_id
	          FROM entries WHERE 1=1`
	var args []any
	if !f.Day.IsZero() {
		query += ` AND day = ?`
		args = append(args, f.Day.Format(dayLayout))
	}
	if f.Slug != "" {
		query += ` AND slug = ?`
		args = append(args, f.Slug)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.ChangeLogEntry
	for rows.Next() {
		var e model.ChangeLogEntry
		var createdAt, files, changes string
		if err := rows.Scan(&e.ID, &e.Slug, &e.Title, &createdAt, &files,
			&e.Reasoning, &changes, &e.Notes, &e.DispatchID); err != nil {
			return nil, err
		}
		if e.Date, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(files), &e.FilesModified); err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(changes), &e.Changes); err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
