// Package indexing drains the request queue into the named indexes. Each
// named index is a lane processed in queue order; lanes run concurrently up
// to a worker bound, and only one drain runs at a time.
package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/karolberezicki/content-search-lucene/internal/document"
	"github.com/karolberezicki/content-search-lucene/internal/engine"
	"github.com/karolberezicki/content-search-lucene/internal/extract"
	"github.com/karolberezicki/content-search-lucene/internal/queue"
	"github.com/karolberezicki/content-search-lucene/internal/reference"
)

const drainKey = "drain"

// Config configures an Orchestrator.
type Config struct {
	// Workers bounds how many named indexes drain concurrently.
	// Defaults to the number of CPUs.
	Workers int

	// Limits are applied to every request on enqueue and again on apply.
	Limits document.Limits
}

// Report summarizes one drain.
type Report struct {
	DrainID   string        `json:"drainId"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Deferred  int           `json:"deferred"`
	Indexes   []string      `json:"indexes,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Orchestrator applies queued change requests to the engine.
type Orchestrator struct {
	queue    *queue.Queue
	refs     *reference.Store
	registry *engine.Registry
	extract  extract.Source
	limits   document.Limits
	workers  int

	drains   singleflight.Group
	progress *Progress
}

// New creates an orchestrator. A nil source disables text extraction.
func New(q *queue.Queue, refs *reference.Store, registry *engine.Registry, src extract.Source, cfg Config) *Orchestrator {
	if src == nil {
		src = extract.Nop{}
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Limits == (document.Limits{}) {
		cfg.Limits = document.DefaultLimits()
	}
	return &Orchestrator{
		queue:    q,
		refs:     refs,
		registry: registry,
		extract:  src,
		limits:   cfg.Limits,
		workers:  cfg.Workers,
		progress: NewProgress(),
	}
}

// Progress returns the drain progress tracker.
func (o *Orchestrator) Progress() *Progress { return o.progress }

// Enqueue sanitizes req and appends it to the queue. It never waits for a
// drain. A request without a usable id is logged and dropped.
func (o *Orchestrator) Enqueue(ctx context.Context, req document.ChangeRequest) (int64, error) {
	clean, notes := document.Sanitize(req, o.limits)
	for _, n := range notes {
		slog.Debug("request_sanitized", slog.String("id", clean.ID), slog.String("note", n))
	}
	if clean.ID == "" {
		slog.Warn("request_discarded",
			slog.String("reason", "no usable id"),
			slog.String("index", clean.NamedIndex))
		return 0, nil
	}
	return o.queue.Enqueue(ctx, clean)
}

// ProcessQueue drains every entry queued at call time. A caller arriving
// while a drain runs joins it and gets its report.
func (o *Orchestrator) ProcessQueue(ctx context.Context) (Report, error) {
	v, err, shared := o.drains.Do(drainKey, func() (interface{}, error) {
		return o.drain(ctx)
	})
	if shared {
		slog.Debug("drain_joined")
	}
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

type lane struct {
	name    string
	entries []queue.Entry
}

func (o *Orchestrator) drain(ctx context.Context) (Report, error) {
	start := time.Now()
	rep := Report{DrainID: uuid.NewString()}

	entries, err := o.queue.Snapshot(ctx)
	if err != nil {
		return rep, err
	}
	o.progress.start(rep.DrainID, len(entries))
	defer o.progress.finish()

	if len(entries) == 0 {
		return rep, nil
	}

	lanes := splitLanes(entries)
	slog.Info("drain_started",
		slog.String("drain_id", rep.DrainID),
		slog.Int("entries", len(entries)),
		slog.Int("indexes", len(lanes)))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(o.workers)
	for _, l := range lanes {
		g.Go(func() error {
			done, failed, deferred := o.runLane(ctx, l)
			mu.Lock()
			rep.Processed += done
			rep.Failed += failed
			rep.Deferred += deferred
			rep.Indexes = append(rep.Indexes, l.name)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rep.Duration = time.Since(start)
	slog.Info("drain_finished",
		slog.String("drain_id", rep.DrainID),
		slog.Int("processed", rep.Processed),
		slog.Int("failed", rep.Failed),
		slog.Int("deferred", rep.Deferred),
		slog.Duration("duration", rep.Duration))
	return rep, nil
}

// splitLanes groups entries by named index, keeping queue order within each
// lane and ordering lanes by their oldest entry.
func splitLanes(entries []queue.Entry) []lane {
	var lanes []lane
	pos := map[string]int{}
	for _, e := range entries {
		i, ok := pos[e.NamedIndex]
		if !ok {
			i = len(lanes)
			pos[e.NamedIndex] = i
			lanes = append(lanes, lane{name: e.NamedIndex})
		}
		lanes[i].entries = append(lanes[i].entries, e)
	}
	return lanes
}

// runLane applies one index's entries in order and stops at the first
// failure, leaving it and everything after it queued.
func (o *Orchestrator) runLane(ctx context.Context, l lane) (done, failed, deferred int) {
	// Entries that have started run to completion.
	applyCtx := context.WithoutCancel(ctx)

	for i, e := range l.entries {
		if ctx.Err() != nil {
			return done, failed, len(l.entries) - i
		}

		if err := o.apply(applyCtx, e.Request); err != nil {
			o.progress.entryFailed(err)
			slog.Error("queue_entry_failed",
				slog.String("index", l.name),
				slog.Int64("seq", e.Seq),
				slog.String("id", e.Request.ID),
				slog.Int("attempts", e.Attempts+1),
				slog.String("error", err.Error()))
			if mErr := o.queue.MarkFailed(applyCtx, e.Seq, err); mErr != nil {
				slog.Warn("queue_mark_failed", slog.Int64("seq", e.Seq), slog.String("error", mErr.Error()))
			}
			return done, failed + 1, len(l.entries) - i - 1
		}

		if err := o.queue.Remove(applyCtx, e.Seq); err != nil {
			// The entry is applied but still queued; the next drain applies it again.
			slog.Error("queue_remove_failed",
				slog.String("index", l.name),
				slog.Int64("seq", e.Seq),
				slog.String("error", err.Error()))
			return done, failed, len(l.entries) - i
		}
		o.progress.entryDone()
		done++
	}
	return done, failed, 0
}

// TruncateQueue discards every pending entry. Committed documents stay.
func (o *Orchestrator) TruncateQueue(ctx context.Context) (int64, error) {
	n, err := o.queue.Truncate(ctx)
	if err != nil {
		return 0, fmt.Errorf("truncate queue: %w", err)
	}
	slog.Info("queue_truncated", slog.Int64("entries", n))
	return n, nil
}
