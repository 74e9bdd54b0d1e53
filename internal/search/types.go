// Package search executes structured queries across named indexes and
// merges the hits into one ranked, paged result.
package search

import (
	"time"

	"github.com/karolberezicki/content-search-lucene/internal/config"
	"github.com/karolberezicki/content-search-lucene/internal/document"
	"github.com/karolberezicki/content-search-lucene/internal/query"
)

// DefaultPageSize is used when a request leaves the page size at zero.
const DefaultPageSize = 10

// Request is one search call.
type Request struct {
	// Expr is the query expression.
	Expr query.Expr

	// Identity lists the caller's principals. When non-empty, only documents
	// whose ACL holds at least one of them are returned.
	Identity []string

	// Indexes selects named indexes. Empty means every open index.
	Indexes []string

	// Page is 1-based. Zero means the first page.
	Page int

	// PageSize is the number of items per page. Zero means DefaultPageSize.
	PageSize int
}

// Results is one page of hits.
type Results struct {
	Items     []document.Item `json:"items"`
	TotalHits int             `json:"totalHits"`
	Page      int             `json:"page"`
	PageSize  int             `json:"pageSize"`
}

// Options configures an Executor.
type Options struct {
	// DisplayTextLength caps returned display text, in runes.
	DisplayTextLength int

	// MaxPageSize caps the page size. Larger requests are clamped.
	MaxPageSize int

	// RescoreWindow is the minimum number of hits fetched per index so that
	// document boost can reorder them.
	RescoreWindow int

	// MaxFuzzyExpansions caps the terms one fuzzy query expands to.
	MaxFuzzyExpansions int

	// Now returns the time the publication window is checked against.
	Now func() time.Time
}

// OptionsFromConfig maps the search section of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DisplayTextLength:  cfg.Search.DisplayTextLength,
		MaxPageSize:        cfg.Search.MaxPageSize,
		RescoreWindow:      cfg.Search.RescoreWindow,
		MaxFuzzyExpansions: cfg.Search.MaxFuzzyExpansions,
	}
}

func (o Options) withDefaults() Options {
	if o.DisplayTextLength <= 0 {
		o.DisplayTextLength = 500
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = 1000
	}
	if o.RescoreWindow < 0 {
		o.RescoreWindow = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
