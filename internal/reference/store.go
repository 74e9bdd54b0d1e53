// Package reference keeps the rows of reference items, keyed by the parent
// document they are merged into. Rows outlive the parent document so a
// parent that is removed and added again gets its references back.
package reference

import (
	"context"
	"database/sql"
	"errors"

	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS reference_entries (
	named_index  TEXT NOT NULL,
	ref_id       TEXT NOT NULL,
	parent_id    TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	display_text TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (named_index, ref_id)
);
CREATE INDEX IF NOT EXISTS idx_reference_parent ON reference_entries(named_index, parent_id);
`

// Entry is the stored text of one reference item.
type Entry struct {
	NamedIndex  string
	ParentID    string
	RefID       string
	Title       string
	DisplayText string
	Metadata    string
}

// Store is the sqlite-backed reference table.
type Store struct {
	db *sql.DB
}

// New creates the reference table in db if needed.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, cserrors.StorageError("failed to initialize reference schema", err)
	}
	return &Store{db: db}, nil
}

// Get returns the entry for refID.
func (s *Store) Get(ctx context.Context, namedIndex, refID string) (Entry, bool, error) {
	e := Entry{NamedIndex: namedIndex, RefID: refID}
	err := s.db.QueryRowContext(ctx,
		`SELECT parent_id, title, display_text, metadata FROM reference_entries
		 WHERE named_index = ? AND ref_id = ?`, namedIndex, refID).
		Scan(&e.ParentID, &e.Title, &e.DisplayText, &e.Metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, cserrors.StorageError("failed to read reference entry", err)
	}
	return e, true, nil
}

// Put inserts or replaces e. A replaced entry keeps its position among its
// parent's references; moving it to another parent appends it there.
func (s *Store) Put(ctx context.Context, e Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cserrors.StorageError("failed to store reference entry", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM reference_entries WHERE named_index = ? AND ref_id = ? AND parent_id <> ?`,
		e.NamedIndex, e.RefID, e.ParentID); err != nil {
		return cserrors.StorageError("failed to store reference entry", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reference_entries (named_index, ref_id, parent_id, title, display_text, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (named_index, ref_id) DO UPDATE SET
			title = excluded.title,
			display_text = excluded.display_text,
			metadata = excluded.metadata`,
		e.NamedIndex, e.RefID, e.ParentID, e.Title, e.DisplayText, e.Metadata); err != nil {
		return cserrors.StorageError("failed to store reference entry", err)
	}
	if err := tx.Commit(); err != nil {
		return cserrors.StorageError("failed to store reference entry", err)
	}
	return nil
}

// Delete removes the entry for refID. A missing entry is not an error.
func (s *Store) Delete(ctx context.Context, namedIndex, refID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reference_entries WHERE named_index = ? AND ref_id = ?`, namedIndex, refID)
	if err != nil {
		return cserrors.StorageError("failed to delete reference entry", err)
	}
	return nil
}

// ForParent returns the entries merged into parentID in insertion order.
func (s *Store) ForParent(ctx context.Context, namedIndex, parentID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ref_id, title, display_text, metadata FROM reference_entries
		 WHERE named_index = ? AND parent_id = ? ORDER BY rowid`, namedIndex, parentID)
	if err != nil {
		return nil, cserrors.StorageError("failed to read reference entries", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		e := Entry{NamedIndex: namedIndex, ParentID: parentID}
		if err := rows.Scan(&e.RefID, &e.Title, &e.DisplayText, &e.Metadata); err != nil {
			return nil, cserrors.StorageError("failed to scan reference entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, cserrors.StorageError("failed to read reference entries", err)
	}
	return out, nil
}

// DeleteIndex drops every entry of a named index.
func (s *Store) DeleteIndex(ctx context.Context, namedIndex string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reference_entries WHERE named_index = ?`, namedIndex); err != nil {
		return cserrors.StorageError("failed to clear reference entries", err)
	}
	return nil
}
