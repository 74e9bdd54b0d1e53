package extract

import (
	"context"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes extraction of local files, keyed by path, size and
// modification time so an edited file is extracted again. Remote locators
// pass through uncached.
type Cached struct {
	inner Extractor
	cache *lru.Cache[string, string]
}

// NewCached wraps inner with an LRU of size entries.
func NewCached(inner Extractor, size int) (*Cached, error) {
	if size < 1 {
		size = 1
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create extraction cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Extract implements Extractor.
func (c *Cached) Extract(ctx context.Context, locator string) (string, error) {
	key, ok := cacheKey(locator)
	if !ok {
		return c.inner.Extract(ctx, locator)
	}
	if text, hit := c.cache.Get(key); hit {
		return text, nil
	}
	text, err := c.inner.Extract(ctx, locator)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, text)
	return text, nil
}

// Len returns the number of cached texts.
func (c *Cached) Len() int { return c.cache.Len() }

func cacheKey(locator string) (string, bool) {
	p, ok := FilePath(locator)
	if !ok {
		return "", false
	}
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	return fmt.Sprintf("%s|%d|%d", p, info.Size(), info.ModTime().UnixNano()), true
}
