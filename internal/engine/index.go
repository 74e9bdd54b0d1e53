package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"

	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
)

const findPageSize = 1000

// Record is one engine document: its indexed fields and the opaque source it
// was built from. Source is stored and returned verbatim by Get.
type Record struct {
	ID     string
	Fields map[string]interface{}
	Source []byte
}

// Index is one named bleve index. Mutations go through Write, which holds the
// single writer lock and commits one batch. Searches only take the shared
// lifecycle lock, so they read the last committed snapshot and never wait
// for a writer. Reset and Close take the lifecycle lock exclusively.
type Index struct {
	name string
	path string

	life   sync.RWMutex
	writer sync.Mutex
	idx    bleve.Index
	closed bool
}

// OpenIndex opens or creates the index at path. An empty path creates an
// in-memory index. A corrupted on-disk index is cleared and recreated.
func OpenIndex(name, path string) (*Index, error) {
	idx, err := openBleve(path)
	if err != nil {
		return nil, err
	}
	return &Index{name: name, path: path, idx: idx}, nil
}

func openBleve(path string) (bleve.Index, error) {
	im, err := Mapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	if path == "" {
		return bleve.NewMemOnly(im)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}

	if validErr := validateIndexIntegrity(path); validErr != nil {
		slog.Warn("index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, cserrors.New(cserrors.ErrCodeCorruptIndex,
				fmt.Sprintf("index at %s is corrupted and cannot be removed", path), err)
		}
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return bleve.New(path, im)
	}
	if err != nil && isCorruptionError(err) {
		slog.Warn("index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, cserrors.New(cserrors.ErrCodeCorruptIndex,
				fmt.Sprintf("index at %s is corrupted and cannot be removed", path), removeErr)
		}
		slog.Info("index_cleared", slog.String("path", path))
		return bleve.New(path, im)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return idx, nil
}

// validateIndexIntegrity returns an error when an existing index directory
// lacks a readable index_meta.json.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment")
}

// Name returns the named index this engine index serves.
func (ix *Index) Name() string { return ix.name }

func (ix *Index) closedError() error {
	return cserrors.New(cserrors.ErrCodeIndexClosed, fmt.Sprintf("index %q is closed", ix.name), nil)
}

// Write runs fn as the index's only writer and commits everything fn staged
// as a single batch. If fn fails nothing is committed.
func (ix *Index) Write(ctx context.Context, fn func(w *Writer) error) error {
	ix.life.RLock()
	defer ix.life.RUnlock()
	if ix.closed {
		return ix.closedError()
	}

	ix.writer.Lock()
	defer ix.writer.Unlock()

	w := &Writer{ix: ix, batch: ix.idx.NewBatch(), pending: make(map[string]*Record)}
	if err := fn(w); err != nil {
		return err
	}
	if w.batch.Size() == 0 {
		return nil
	}
	if err := ix.idx.Batch(w.batch); err != nil {
		return cserrors.New(cserrors.ErrCodeEngineCommit,
			fmt.Sprintf("commit to index %q failed", ix.name), err)
	}
	return nil
}

// Search runs req against the last committed state.
func (ix *Index) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	ix.life.RLock()
	defer ix.life.RUnlock()
	if ix.closed {
		return nil, ix.closedError()
	}
	return ix.idx.SearchInContext(ctx, req)
}

// Get returns the stored source of a committed document.
func (ix *Index) Get(ctx context.Context, id string) ([]byte, bool, error) {
	ix.life.RLock()
	defer ix.life.RUnlock()
	if ix.closed {
		return nil, false, ix.closedError()
	}
	return ix.get(ctx, id)
}

func (ix *Index) get(ctx context.Context, id string) ([]byte, bool, error) {
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{id}))
	req.Fields = []string{FieldSource}
	req.Size = 1

	res, err := ix.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", id, err)
	}
	if len(res.Hits) == 0 {
		return nil, false, nil
	}
	src, _ := res.Hits[0].Fields[FieldSource].(string)
	return []byte(src), true, nil
}

// find returns the ids of committed documents matching q.
func (ix *Index) find(ctx context.Context, q query.Query) ([]string, error) {
	var ids []string
	for from := 0; ; from += findPageSize {
		req := bleve.NewSearchRequestOptions(q, findPageSize, from, false)
		req.SortBy([]string{"_id"})
		res, err := ix.idx.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("find: %w", err)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < findPageSize {
			return ids, nil
		}
	}
}

// Terms returns every indexed term of field in dictionary order.
func (ix *Index) Terms(field string) ([]string, error) {
	ix.life.RLock()
	defer ix.life.RUnlock()
	if ix.closed {
		return nil, ix.closedError()
	}

	dict, err := ix.idx.FieldDict(field)
	if err != nil {
		return nil, fmt.Errorf("field dictionary %s: %w", field, err)
	}
	defer func() { _ = dict.Close() }()

	var terms []string
	var entry *index.DictEntry
	for entry, err = dict.Next(); err == nil && entry != nil; entry, err = dict.Next() {
		terms = append(terms, entry.Term)
	}
	if err != nil {
		return nil, fmt.Errorf("field dictionary %s: %w", field, err)
	}
	return terms, nil
}

// DocCount returns the number of committed documents.
func (ix *Index) DocCount() (uint64, error) {
	ix.life.RLock()
	defer ix.life.RUnlock()
	if ix.closed {
		return 0, ix.closedError()
	}
	return ix.idx.DocCount()
}

// Reset discards every document and leaves an empty, open index.
func (ix *Index) Reset() error {
	ix.life.Lock()
	defer ix.life.Unlock()
	if ix.closed {
		return ix.closedError()
	}

	if err := ix.idx.Close(); err != nil {
		slog.Warn("index_close_failed", slog.String("index", ix.name), slog.String("error", err.Error()))
	}
	if ix.path != "" {
		if err := os.RemoveAll(ix.path); err != nil {
			ix.closed = true
			return cserrors.StorageError(fmt.Sprintf("failed to clear index %q", ix.name), err)
		}
	}

	idx, err := openBleve(ix.path)
	if err != nil {
		ix.closed = true
		return err
	}
	ix.idx = idx
	return nil
}

// Close closes the index. Further calls fail with ERR_204_INDEX_CLOSED.
func (ix *Index) Close() error {
	ix.life.Lock()
	defer ix.life.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.idx.Close()
}

// Writer stages mutations for one Write call. Reads through the writer see
// its own staged puts and deletes.
type Writer struct {
	ix      *Index
	batch   *bleve.Batch
	pending map[string]*Record
}

// Index returns the index being written.
func (w *Writer) Index() *Index { return w.ix }

// Get returns the source of id as the batch would leave it.
func (w *Writer) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if rec, ok := w.pending[id]; ok {
		if rec == nil {
			return nil, false, nil
		}
		return rec.Source, true, nil
	}
	return w.ix.get(ctx, id)
}

// Exists reports whether id would be live after the batch.
func (w *Writer) Exists(ctx context.Context, id string) (bool, error) {
	_, ok, err := w.Get(ctx, id)
	return ok, err
}

// Put stages rec, replacing any document with the same id.
func (w *Writer) Put(rec Record) error {
	data := make(map[string]interface{}, len(rec.Fields)+1)
	for k, v := range rec.Fields {
		data[k] = v
	}
	data[FieldSource] = string(rec.Source)

	if err := w.batch.Index(rec.ID, data); err != nil {
		return fmt.Errorf("failed to stage document %s: %w", rec.ID, err)
	}
	stored := rec
	w.pending[rec.ID] = &stored
	return nil
}

// Delete stages removal of id. Deleting a missing id is a no-op.
func (w *Writer) Delete(id string) {
	w.batch.Delete(id)
	w.pending[id] = nil
}

// Find returns ids of committed documents matching q, minus ids this writer
// has already deleted. Staged puts are not matched.
func (w *Writer) Find(ctx context.Context, q query.Query) ([]string, error) {
	ids, err := w.ix.find(ctx, q)
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		if rec, ok := w.pending[id]; ok && rec == nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
