// Package inbox ingests change requests dropped as JSON files into a
// directory. Each *.json file holds one request or an array of them; a
// file is removed once its requests are queued. Files that do not parse
// are moved to the failed/ subdirectory. When queueing fails partway, the
// file is rewritten with the requests not yet queued and retried later.
package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/karolberezicki/content-search-lucene/internal/document"
)

// FailedDir is the subdirectory unparseable files are moved to.
const FailedDir = "failed"

// DefaultSettleWindow is how long a file must stay unchanged before it is read.
const DefaultSettleWindow = 200 * time.Millisecond

// DefaultRetryDelay is how long a file waits after its requests could not
// all be queued.
const DefaultRetryDelay = 5 * time.Second

// Sink receives the parsed requests.
type Sink interface {
	UpdateIndex(ctx context.Context, req document.ChangeRequest) error
}

// Inbox watches one directory.
type Inbox struct {
	dir        string
	sink       Sink
	settle     time.Duration
	retryDelay time.Duration

	// onIngest runs after a file's requests were queued.
	onIngest func(n int)

	mu       sync.Mutex
	pending  map[string]*time.Timer
	retrying map[string]bool
	wg       sync.WaitGroup
	ready    chan string
}

// Option customizes an Inbox.
type Option func(*Inbox)

// WithSettleWindow overrides DefaultSettleWindow.
func WithSettleWindow(d time.Duration) Option {
	return func(in *Inbox) { in.settle = d }
}

// WithRetryDelay overrides DefaultRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(in *Inbox) { in.retryDelay = d }
}

// WithIngestHook registers fn to run after each ingested file.
func WithIngestHook(fn func(n int)) Option {
	return func(in *Inbox) { in.onIngest = fn }
}

// New creates an inbox for dir feeding sink.
func New(dir string, sink Sink, opts ...Option) *Inbox {
	in := &Inbox{
		dir:        dir,
		sink:       sink,
		settle:     DefaultSettleWindow,
		retryDelay: DefaultRetryDelay,
		pending:    make(map[string]*time.Timer),
		retrying:   make(map[string]bool),
		ready:      make(chan string, 64),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Run ingests files already present, then watches for new ones until ctx
// is cancelled.
func (in *Inbox) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(in.dir, FailedDir), 0755); err != nil {
		return fmt.Errorf("create inbox directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()
	if err := fsw.Add(in.dir); err != nil {
		return fmt.Errorf("watch inbox %s: %w", in.dir, err)
	}

	slog.Info("inbox_watching", slog.String("dir", in.dir))

	// Files dropped before the watch started are picked up here; any that
	// also raise an event are deduplicated by the settle map.
	existing, err := in.scan()
	if err != nil {
		return err
	}
	for _, path := range existing {
		in.schedule(path)
	}

	defer in.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path := <-in.ready:
			in.ingest(ctx, path)
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				if isRequestFile(ev.Name) {
					in.schedule(ev.Name)
				}
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("inbox_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (in *Inbox) scan() ([]string, error) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	var out []string
	for _, e := range entries {
		path := filepath.Join(in.dir, e.Name())
		if e.Type().IsRegular() && isRequestFile(path) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

// schedule (re)starts the settle timer of path. A file waiting for a retry
// keeps its retry timer.
func (in *Inbox) schedule(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.retrying[path] {
		return
	}
	in.startTimer(path, in.settle)
}

// retry reads path again after the retry delay.
func (in *Inbox) retry(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.retrying[path] = true
	in.startTimer(path, in.retryDelay)
}

// startTimer must be called with mu held.
func (in *Inbox) startTimer(path string, d time.Duration) {
	if t, ok := in.pending[path]; ok {
		if t.Stop() {
			in.wg.Done()
		}
	}
	in.wg.Add(1)
	in.pending[path] = time.AfterFunc(d, func() {
		defer in.wg.Done()
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()
		in.ready <- path
	})
}

func (in *Inbox) stopTimers() {
	in.mu.Lock()
	for path, t := range in.pending {
		if t.Stop() {
			in.wg.Done()
		}
		delete(in.pending, path)
	}
	in.mu.Unlock()

	// Timers that already fired may be blocked on the ready channel.
	done := make(chan struct{})
	go func() {
		in.wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-in.ready:
		case <-done:
			return
		}
	}
}

func (in *Inbox) ingest(ctx context.Context, path string) {
	in.mu.Lock()
	delete(in.retrying, path)
	in.mu.Unlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		slog.Warn("inbox_read_failed", slog.String("file", path), slog.String("error", err.Error()))
		return
	}

	reqs, err := Parse(data)
	if err != nil {
		in.reject(path, err)
		return
	}

	for i, req := range reqs {
		if err := in.sink.UpdateIndex(ctx, req); err != nil {
			slog.Error("inbox_enqueue_failed",
				slog.String("file", path),
				slog.Int("queued", i),
				slog.String("error", err.Error()))
			if i > 0 {
				if err := writeRemaining(path, reqs[i:]); err != nil {
					slog.Error("inbox_rewrite_failed", slog.String("file", path), slog.String("error", err.Error()))
				}
				if in.onIngest != nil {
					in.onIngest(i)
				}
			}
			if ctx.Err() == nil {
				in.retry(path)
			}
			return
		}
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("inbox_remove_failed", slog.String("file", path), slog.String("error", err.Error()))
	}
	slog.Info("inbox_file_ingested", slog.String("file", filepath.Base(path)), slog.Int("requests", len(reqs)))
	if in.onIngest != nil && len(reqs) > 0 {
		in.onIngest(len(reqs))
	}
}

// writeRemaining replaces path with reqs. The new content is written to a
// hidden file first so a crash never leaves a truncated request file.
func writeRemaining(path string, reqs []document.ChangeRequest) error {
	data, err := json.Marshal(reqs)
	if err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (in *Inbox) reject(path string, cause error) {
	dst := filepath.Join(in.dir, FailedDir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		slog.Error("inbox_reject_failed", slog.String("file", path), slog.String("error", err.Error()))
		return
	}
	slog.Warn("inbox_file_rejected",
		slog.String("file", filepath.Base(path)),
		slog.String("moved_to", dst),
		slog.String("error", cause.Error()))
}

// Parse decodes one request or an array of requests.
func Parse(data []byte) ([]document.ChangeRequest, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty request file")
	}
	if data[0] == '[' {
		var reqs []document.ChangeRequest
		if err := json.Unmarshal(data, &reqs); err != nil {
			return nil, fmt.Errorf("decode request array: %w", err)
		}
		return reqs, nil
	}
	var req document.ChangeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return []document.ChangeRequest{req}, nil
}

// isRequestFile skips hidden and partially written files.
func isRequestFile(path string) bool {
	name := filepath.Base(path)
	return !strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".json")
}
