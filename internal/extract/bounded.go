package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Bounded runs an Extractor under a timeout and degrades every failure to
// empty text, logging why.
type Bounded struct {
	inner   Extractor
	timeout time.Duration
}

// NewBounded wraps inner. A non-positive timeout means no deadline.
func NewBounded(inner Extractor, timeout time.Duration) *Bounded {
	return &Bounded{inner: inner, timeout: timeout}
}

type result struct {
	text string
	err  error
}

// Text implements Source.
func (b *Bounded) Text(ctx context.Context, locator string) string {
	if locator == "" {
		return ""
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	done := make(chan result, 1)
	start := time.Now()
	go func() {
		text, err := b.inner.Extract(ctx, locator)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		slog.Warn("extraction_timeout",
			slog.String("locator", locator),
			slog.Duration("timeout", b.timeout))
		return ""
	case r := <-done:
		if r.err != nil {
			level := slog.LevelWarn
			if errors.Is(r.err, ErrUnsupported) {
				level = slog.LevelDebug
			}
			slog.Log(context.Background(), level, "extraction_failed",
				slog.String("locator", locator),
				slog.String("error", r.err.Error()))
			return ""
		}
		slog.Debug("extraction_done",
			slog.String("locator", locator),
			slog.Int("chars", len(r.text)),
			slog.Duration("took", time.Since(start)))
		return r.text
	}
}
