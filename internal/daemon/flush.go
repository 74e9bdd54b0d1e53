package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/karolberezicki/content-search-lucene/internal/indexing"
)

// DrainFunc applies the queued requests.
type DrainFunc func(ctx context.Context) (indexing.Report, error)

// Flusher drains the queue in the background: on a fixed interval, and
// once the queue goes quiet after an update burst.
type Flusher struct {
	drain    DrainFunc
	interval time.Duration
	quiet    time.Duration

	mu         sync.Mutex
	quietTimer *time.Timer
	lastFlush  time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewFlusher creates a flusher. A zero interval disables the periodic
// flush; a zero quiet period disables nudged flushes.
func NewFlusher(drain DrainFunc, interval, quiet time.Duration) *Flusher {
	return &Flusher{drain: drain, interval: interval, quiet: quiet}
}

// Start begins the periodic flush.
func (f *Flusher) Start(ctx context.Context) {
	f.ctx, f.cancel = context.WithCancel(ctx)
	slog.Debug("flusher_started",
		slog.Duration("interval", f.interval),
		slog.Duration("quiet", f.quiet))

	if f.interval <= 0 {
		return
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-f.ctx.Done():
				return
			case <-ticker.C:
				f.flush("interval")
			}
		}
	}()
}

// Nudge restarts the quiet timer; the flush runs when it fires.
func (f *Flusher) Nudge() {
	if f.quiet <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctx == nil || f.ctx.Err() != nil {
		return
	}
	if f.quietTimer != nil && f.quietTimer.Stop() {
		f.wg.Done()
	}
	f.wg.Add(1)
	f.quietTimer = time.AfterFunc(f.quiet, func() {
		defer f.wg.Done()
		f.flush("quiet")
	})
}

// LastFlush returns when the last flush finished.
func (f *Flusher) LastFlush() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFlush
}

func (f *Flusher) flush(trigger string) {
	if f.ctx.Err() != nil {
		return
	}
	rep, err := f.drain(f.ctx)
	f.mu.Lock()
	f.lastFlush = time.Now()
	f.mu.Unlock()
	if err != nil {
		slog.Warn("queue_flush_failed",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()))
		return
	}
	if rep.Processed+rep.Failed+rep.Deferred == 0 {
		return
	}
	slog.Info("queue_flush_complete",
		slog.String("trigger", trigger),
		slog.String("drain_id", rep.DrainID),
		slog.Int("processed", rep.Processed),
		slog.Int("failed", rep.Failed),
		slog.Int("deferred", rep.Deferred),
		slog.Duration("duration", rep.Duration))
}

// Stop halts both triggers and waits for a running flush to finish.
func (f *Flusher) Stop() {
	f.stopOnce.Do(func() {
		if f.cancel != nil {
			f.cancel()
		}
		f.mu.Lock()
		if f.quietTimer != nil && f.quietTimer.Stop() {
			f.wg.Done()
		}
		f.mu.Unlock()
		f.wg.Wait()
		slog.Debug("flusher_stopped")
	})
}
