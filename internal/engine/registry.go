package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/karolberezicki/content-search-lucene/internal/config"
	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
)

// Registry maps named indexes to engine indexes, creating them on first use.
// Each index lives in <root>/<name>; an empty root keeps every index in memory.
type Registry struct {
	root string

	mu      sync.Mutex
	indexes map[string]*Index
	closed  bool
}

// NewRegistry creates a registry rooted at root.
func NewRegistry(root string) *Registry {
	return &Registry{root: root, indexes: map[string]*Index{}}
}

// Discover opens every index already present under the root.
func (r *Registry) Discover() error {
	if r.root == "" {
		return nil
	}
	entries, err := os.ReadDir(r.root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return cserrors.StorageError("failed to list indexes", err).WithDetail("path", r.root)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := r.Open(e.Name()); err != nil {
			return err
		}
	}
	return nil
}

// Open returns the index called name, creating it if needed.
func (r *Registry) Open(name string) (*Index, error) {
	if err := config.ValidateIndexName(name); err != nil {
		return nil, cserrors.New(cserrors.ErrCodeUnknownIndex, err.Error(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, cserrors.New(cserrors.ErrCodeIndexClosed, "index registry is closed", nil)
	}
	if ix, ok := r.indexes[name]; ok {
		return ix, nil
	}

	path := ""
	if r.root != "" {
		path = filepath.Join(r.root, name)
	}
	ix, err := OpenIndex(name, path)
	if err != nil {
		return nil, fmt.Errorf("open index %q: %w", name, err)
	}
	slog.Info("index_opened", slog.String("index", name), slog.String("path", path))
	r.indexes[name] = ix
	return ix, nil
}

// Lookup returns an index that is already open.
func (r *Registry) Lookup(name string) (*Index, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ix, ok := r.indexes[name]
	return ix, ok
}

// Names returns the open index names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.indexes))
	for name := range r.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the open indexes ordered by name.
func (r *Registry) All() []*Index {
	names := r.Names()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Index, 0, len(names))
	for _, name := range names {
		if ix, ok := r.indexes[name]; ok {
			out = append(out, ix)
		}
	}
	return out
}

// Close closes every index and reports all failures together.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	errs := new(multierror.Error)
	for name, ix := range r.indexes {
		if err := ix.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("cannot close index %q: %w", name, err))
		}
	}
	return errs.ErrorOrNil()
}
