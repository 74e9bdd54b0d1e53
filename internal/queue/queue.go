// Package queue is the durable FIFO of pending change requests, kept in the
// shared sqlite state database. Insertion order is the AUTOINCREMENT seq.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/karolberezicki/content-search-lucene/internal/document"
	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS queue (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	named_index TEXT    NOT NULL,
	payload     TEXT    NOT NULL,
	enqueued_at INTEGER NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_queue_index_seq ON queue(named_index, seq);
`

// Entry is one queued request.
type Entry struct {
	Seq        int64
	NamedIndex string
	Request    document.ChangeRequest
	EnqueuedAt time.Time
	Attempts   int
	LastError  string
}

// IndexStats summarizes the pending entries of one named index.
type IndexStats struct {
	NamedIndex  string    `json:"namedIndex"`
	Pending     int       `json:"pending"`
	Failing     int       `json:"failing"`
	MaxAttempts int       `json:"maxAttempts"`
	Oldest      time.Time `json:"oldest"`
}

// Queue is safe for concurrent use; sqlite serializes the statements.
type Queue struct {
	db *sql.DB
}

// New creates the queue table in db if needed.
func New(db *sql.DB) (*Queue, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, cserrors.StorageError("failed to initialize queue schema", err)
	}
	return &Queue{db: db}, nil
}

// Enqueue appends req and returns its sequence number.
func (q *Queue) Enqueue(ctx context.Context, req document.ChangeRequest) (int64, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, cserrors.InternalError("failed to encode change request", err)
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO queue (named_index, payload, enqueued_at) VALUES (?, ?, ?)`,
		req.NamedIndex, string(payload), time.Now().UnixMilli())
	if err != nil {
		return 0, cserrors.StorageError("failed to enqueue change request", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, cserrors.StorageError("failed to read queue sequence", err)
	}
	return seq, nil
}

// Snapshot returns every entry present now, in insertion order. An entry
// whose payload cannot be decoded is returned with an empty request.
func (q *Queue) Snapshot(ctx context.Context) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT seq, named_index, payload, enqueued_at, attempts, last_error FROM queue ORDER BY seq`)
	if err != nil {
		return nil, cserrors.StorageError("failed to read queue", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			payload  string
			enqueued int64
		)
		if err := rows.Scan(&e.Seq, &e.NamedIndex, &payload, &enqueued, &e.Attempts, &e.LastError); err != nil {
			return nil, cserrors.StorageError("failed to scan queue entry", err)
		}
		e.EnqueuedAt = time.UnixMilli(enqueued).UTC()
		if err := json.Unmarshal([]byte(payload), &e.Request); err != nil {
			slog.Warn("queue_payload_invalid",
				slog.Int64("seq", e.Seq),
				slog.String("error", err.Error()))
			e.Request = document.ChangeRequest{}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, cserrors.StorageError("failed to read queue", err)
	}
	return entries, nil
}

// Remove deletes a processed entry.
func (q *Queue) Remove(ctx context.Context, seq int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM queue WHERE seq = ?`, seq); err != nil {
		return cserrors.StorageError("failed to remove queue entry", err).
			WithDetail("seq", fmt.Sprint(seq))
	}
	return nil
}

// MarkFailed records a failed attempt; the entry stays queued.
func (q *Queue) MarkFailed(ctx context.Context, seq int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE queue SET attempts = attempts + 1, last_error = ? WHERE seq = ?`, msg, seq)
	if err != nil {
		return cserrors.StorageError("failed to record queue failure", err).
			WithDetail("seq", fmt.Sprint(seq))
	}
	return nil
}

// Truncate discards every entry and returns how many were dropped.
func (q *Queue) Truncate(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM queue`)
	if err != nil {
		return 0, cserrors.StorageError("failed to truncate queue", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Len returns the number of pending entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue`).Scan(&n); err != nil {
		return 0, cserrors.StorageError("failed to count queue", err)
	}
	return n, nil
}

// Stats returns per-index pending counts ordered by index name.
func (q *Queue) Stats(ctx context.Context) ([]IndexStats, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT named_index,
		       COUNT(*),
		       SUM(CASE WHEN attempts > 0 THEN 1 ELSE 0 END),
		       MAX(attempts),
		       MIN(enqueued_at)
		FROM queue
		GROUP BY named_index
		ORDER BY named_index`)
	if err != nil {
		return nil, cserrors.StorageError("failed to read queue stats", err)
	}
	defer func() { _ = rows.Close() }()

	var out []IndexStats
	for rows.Next() {
		var (
			s      IndexStats
			oldest int64
		)
		if err := rows.Scan(&s.NamedIndex, &s.Pending, &s.Failing, &s.MaxAttempts, &oldest); err != nil {
			return nil, cserrors.StorageError("failed to scan queue stats", err)
		}
		s.Oldest = time.UnixMilli(oldest).UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, cserrors.StorageError("failed to read queue stats", err)
	}
	return out, nil
}
