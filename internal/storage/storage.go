// Package storage owns the on-disk layout of a data directory: the
// single-process lock, the shared state database holding the request queue
// and the reference rows, and the root under which named indexes live.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	// Pure Go sqlite driver, registered as "sqlite".
	_ "modernc.org/sqlite"

	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
)

const (
	lockFileName  = ".lock"
	stateFileName = "state.db"
	indexesDir    = "indexes"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DataDir is a locked data directory.
type DataDir struct {
	path  string
	flock *flock.Flock
}

// LockDataDir creates dir if needed and takes its exclusive lock, retrying
// with backoff while another process holds it.
func LockDataDir(ctx context.Context, dir string, retry cserrors.RetryConfig) (*DataDir, error) {
	if err := os.MkdirAll(filepath.Join(dir, indexesDir), 0o755); err != nil {
		return nil, cserrors.StorageError("failed to create data directory", err).
			WithDetail("path", dir)
	}

	fl := flock.New(filepath.Join(dir, lockFileName))
	err := cserrors.Retry(ctx, retry, func() error {
		acquired, err := fl.TryLock()
		if err != nil {
			return cserrors.StorageError("failed to lock data directory", err)
		}
		if !acquired {
			return cserrors.New(cserrors.ErrCodeIndexLocked, "data directory is locked", nil)
		}
		return nil
	})
	if err != nil {
		if cserrors.GetCode(err) == cserrors.ErrCodeIndexLocked {
			return nil, cserrors.New(cserrors.ErrCodeDataDirLocked,
				fmt.Sprintf("data directory %s is in use by another process", dir), err).
				WithSuggestion("Stop the running server or point storage.data_dir elsewhere")
		}
		return nil, err
	}

	return &DataDir{path: dir, flock: fl}, nil
}

// Path returns the data directory.
func (d *DataDir) Path() string { return d.path }

// IndexesPath returns the directory holding one bleve index per named index.
func (d *DataDir) IndexesPath() string { return IndexesIn(d.path) }

// IndexesIn returns the index directory of the data directory dir.
func IndexesIn(dir string) string { return filepath.Join(dir, indexesDir) }

// StatePath returns the path of the shared state database.
func (d *DataDir) StatePath() string { return filepath.Join(d.path, stateFileName) }

// Unlock releases the data directory lock.
func (d *DataDir) Unlock() error {
	if d == nil || d.flock == nil {
		return nil
	}
	if err := d.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release data directory lock: %w", err)
	}
	return nil
}

// OpenDB opens a sqlite database with one connection in WAL mode.
// An empty path or MemoryPath opens an in-memory database.
func OpenDB(path string) (*sql.DB, error) {
	dsn := path
	if path == "" || path == MemoryPath {
		dsn = MemoryPath
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, cserrors.StorageError("failed to create database directory", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cserrors.StorageError("failed to open database", err).WithDetail("path", path)
	}

	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, cserrors.StorageError("failed to set pragma", err).WithDetail("pragma", pragma)
		}
	}

	return db, nil
}
