// Package service is the facade over the content search core: it owns the
// data directory, the state database, the named indexes and the queue
// orchestrator, and exposes the operations callers use.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/karolberezicki/content-search-lucene/internal/config"
	"github.com/karolberezicki/content-search-lucene/internal/document"
	"github.com/karolberezicki/content-search-lucene/internal/engine"
	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
	"github.com/karolberezicki/content-search-lucene/internal/extract"
	"github.com/karolberezicki/content-search-lucene/internal/indexing"
	"github.com/karolberezicki/content-search-lucene/internal/queue"
	"github.com/karolberezicki/content-search-lucene/internal/reference"
	"github.com/karolberezicki/content-search-lucene/internal/search"
	"github.com/karolberezicki/content-search-lucene/internal/storage"
	"github.com/karolberezicki/content-search-lucene/internal/telemetry"
)

// Option customizes Open.
type Option func(*options)

type options struct {
	source extract.Source
	now    func() time.Time
}

// WithSource replaces the extraction collaborator built from configuration.
func WithSource(src extract.Source) Option {
	return func(o *options) { o.source = src }
}

// WithClock sets the clock the publication window is checked against.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Service is safe for concurrent use.
type Service struct {
	cfg      *config.Config
	dataDir  *storage.DataDir
	db       *sql.DB
	registry *engine.Registry
	queue    *queue.Queue
	refs     *reference.Store
	orch     *indexing.Orchestrator
	exec     *search.Executor
	metrics  *telemetry.Metrics
	started  time.Time
}

// Open opens the service described by cfg. An empty storage.data_dir keeps
// everything in memory.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{cfg: cfg, metrics: telemetry.New(telemetry.DefaultConfig()), started: time.Now()}
	if err := s.openStorage(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	for _, name := range cfg.Indexes.Names {
		if _, err := s.registry.Open(name); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	if _, err := s.registry.Open(cfg.Indexes.Default); err != nil {
		_ = s.Close()
		return nil, err
	}

	src := o.source
	if src == nil {
		var err error
		if src, err = buildSource(cfg); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	s.orch = indexing.New(s.queue, s.refs, s.registry, src, indexing.Config{
		Workers: cfg.Queue.Workers,
		Limits:  document.LimitsFromConfig(cfg),
	})

	searchOpts := search.OptionsFromConfig(cfg)
	searchOpts.Now = o.now
	s.exec = search.NewExecutor(s.registry, searchOpts)

	slog.Info("service_opened",
		slog.String("data_dir", cfg.Storage.DataDir),
		slog.Any("indexes", s.registry.Names()))
	return s, nil
}

func (s *Service) openStorage(ctx context.Context) error {
	dbPath := storage.MemoryPath
	indexRoot := ""
	if dir := s.cfg.Storage.DataDir; dir != "" {
		dd, err := storage.LockDataDir(ctx, dir, cserrors.DefaultRetryConfig())
		if err != nil {
			return err
		}
		s.dataDir = dd
		dbPath = dd.StatePath()
		indexRoot = dd.IndexesPath()
	}

	db, err := storage.OpenDB(dbPath)
	if err != nil {
		return err
	}
	s.db = db

	if s.queue, err = queue.New(db); err != nil {
		return err
	}
	if s.refs, err = reference.New(db); err != nil {
		return err
	}

	s.registry = engine.NewRegistry(indexRoot)
	return s.registry.Discover()
}

func buildSource(cfg *config.Config) (extract.Source, error) {
	if !cfg.Extraction.Enabled {
		return extract.Nop{}, nil
	}
	cached, err := extract.NewCached(extract.NewLocal(cfg.Extraction.MaxBytes), cfg.Extraction.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("build extraction cache: %w", err)
	}
	return extract.NewBounded(cached, cfg.ExtractionTimeout()), nil
}

// Config returns the configuration the service was opened with.
func (s *Service) Config() *config.Config { return s.cfg }

// UpdateIndex queues a change request. It returns once the request is
// durable and never waits for indexing.
func (s *Service) UpdateIndex(ctx context.Context, req document.ChangeRequest) error {
	_, err := s.orch.Enqueue(ctx, req)
	return err
}

// GetSearchResults runs a search and records it in the search metrics.
func (s *Service) GetSearchResults(ctx context.Context, req search.Request) (search.Results, error) {
	start := time.Now()
	res, err := s.exec.Search(ctx, req)
	s.metrics.Record(telemetry.Event{
		Expr:    req.Expr,
		Results: res.TotalHits,
		Latency: time.Since(start),
		Failed:  err != nil,
	})
	return res, err
}

// GetNamedIndexes returns the names of the open indexes.
func (s *Service) GetNamedIndexes() []string {
	return s.registry.Names()
}

// ResetIndex empties a named index and forgets its reference rows.
// Queued requests for it are kept.
func (s *Service) ResetIndex(ctx context.Context, name string) error {
	ix, ok := s.registry.Lookup(name)
	if !ok {
		return cserrors.New(cserrors.ErrCodeUnknownIndex, fmt.Sprintf("unknown named index %q", name), nil)
	}
	if err := ix.Reset(); err != nil {
		return err
	}
	if err := s.refs.DeleteIndex(ctx, name); err != nil {
		return err
	}
	slog.Info("index_reset", slog.String("index", name))
	return nil
}

// TruncateQueue discards every queued request and returns how many there were.
func (s *Service) TruncateQueue(ctx context.Context) (int64, error) {
	return s.orch.TruncateQueue(ctx)
}

// ProcessQueue drains the queue, joining a drain already in progress.
func (s *Service) ProcessQueue(ctx context.Context) (indexing.Report, error) {
	return s.orch.ProcessQueue(ctx)
}

// QueueStatus describes pending work.
type QueueStatus struct {
	Pending int                       `json:"pending"`
	Indexes []queue.IndexStats        `json:"indexes"`
	Drain   indexing.ProgressSnapshot `json:"drain"`
}

// QueueStatus reports pending entries per index and the last drain.
func (s *Service) QueueStatus(ctx context.Context) (QueueStatus, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return QueueStatus{}, err
	}
	st := QueueStatus{Indexes: stats, Drain: s.orch.Progress().Snapshot()}
	for _, is := range stats {
		st.Pending += is.Pending
	}
	return st, nil
}

// IndexInfo describes one named index.
type IndexInfo struct {
	Name      string `json:"name"`
	Documents uint64 `json:"documents"`
}

// Status is a snapshot of the whole service.
type Status struct {
	DataDir string             `json:"dataDir"`
	Uptime  string             `json:"uptime"`
	Indexes []IndexInfo        `json:"indexes"`
	Queue   QueueStatus        `json:"queue"`
	Search  telemetry.Snapshot `json:"search"`
}

// Status reports index sizes, queue state and search metrics.
func (s *Service) Status(ctx context.Context) (Status, error) {
	qs, err := s.QueueStatus(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		DataDir: s.cfg.Storage.DataDir,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Queue:   qs,
		Search:  s.metrics.Snapshot(),
	}
	for _, ix := range s.registry.All() {
		n, err := ix.DocCount()
		if err != nil {
			return Status{}, err
		}
		st.Indexes = append(st.Indexes, IndexInfo{Name: ix.Name(), Documents: n})
	}
	return st, nil
}

// Close releases indexes, the database and the data directory lock,
// reporting every failure.
func (s *Service) Close() error {
	errs := new(multierror.Error)
	if s.registry != nil {
		if err := s.registry.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close state database: %w", err))
		}
	}
	if err := s.dataDir.Unlock(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
