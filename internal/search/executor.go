package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/blevesearch/bleve/v2"
	bq "github.com/blevesearch/bleve/v2/search/query"
	"golang.org/x/sync/errgroup"

	"github.com/karolberezicki/content-search-lucene/internal/document"
	"github.com/karolberezicki/content-search-lucene/internal/engine"
	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
	"github.com/karolberezicki/content-search-lucene/internal/query"
)

// Executor runs searches against the indexes of a registry.
type Executor struct {
	registry *engine.Registry
	opts     Options
}

// NewExecutor creates an executor.
func NewExecutor(registry *engine.Registry, opts Options) *Executor {
	return &Executor{registry: registry, opts: opts.withDefaults()}
}

// hit is one engine match with the keys it is merged by.
type hit struct {
	item       document.Item
	score      float64
	indexOrder int
	hitNumber  int
}

type indexResult struct {
	hits  []hit
	total int
}

// Search compiles req.Expr for every selected index, runs the indexes
// concurrently and returns the requested page of the merged hits. A compile
// error in any index fails the whole search.
func (e *Executor) Search(ctx context.Context, req Request) (Results, error) {
	start := time.Now()

	page, size, err := e.paging(req)
	if err != nil {
		return Results{}, err
	}
	indexes, err := e.selectIndexes(req.Indexes)
	if err != nil {
		return Results{}, err
	}

	from := (page - 1) * size
	window := max(from+size, e.opts.RescoreWindow)
	now := e.opts.Now()

	results := make([]indexResult, len(indexes))
	g, gctx := errgroup.WithContext(ctx)
	for i, ix := range indexes {
		g.Go(func() error {
			q, err := query.NewCompiler(ix, e.opts.MaxFuzzyExpansions).Compile(req.Expr)
			if err != nil {
				return err
			}
			r, err := e.searchIndex(gctx, ix, query.Scope(q, now, req.Identity), window, i)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Results{}, err
	}

	var merged []hit
	total := 0
	for _, r := range results {
		merged = append(merged, r.hits...)
		total += r.total
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return ranksBefore(merged[i], merged[j])
	})

	out := Results{Items: []document.Item{}, TotalHits: total, Page: page, PageSize: size}
	if from < len(merged) {
		end := min(from+size, len(merged))
		for _, h := range merged[from:end] {
			out.Items = append(out.Items, h.item)
		}
	}

	slog.Debug("search_executed",
		slog.Int("indexes", len(indexes)),
		slog.Int("total_hits", total),
		slog.Int("returned", len(out.Items)),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}

// ranksBefore orders by boosted score, then index order, then the engine's
// own order within an index.
func ranksBefore(a, b hit) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.indexOrder != b.indexOrder {
		return a.indexOrder < b.indexOrder
	}
	return a.hitNumber < b.hitNumber
}

func (e *Executor) paging(req Request) (int, int, error) {
	page, size := req.Page, req.PageSize
	if page < 0 || size < 0 {
		return 0, 0, cserrors.New(cserrors.ErrCodeInvalidPaging,
			fmt.Sprintf("page %d and page size %d must not be negative", page, size), nil)
	}
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = DefaultPageSize
	}
	if size > e.opts.MaxPageSize {
		size = e.opts.MaxPageSize
	}
	return page, size, nil
}

func (e *Executor) selectIndexes(names []string) ([]*engine.Index, error) {
	if len(names) == 0 {
		return e.registry.All(), nil
	}
	seen := map[string]bool{}
	out := make([]*engine.Index, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		ix, ok := e.registry.Lookup(name)
		if !ok {
			return nil, cserrors.New(cserrors.ErrCodeUnknownIndex,
				fmt.Sprintf("unknown named index %q", name), nil).
				WithSuggestion("list indexes with 'contentsearch indexes'")
		}
		out = append(out, ix)
	}
	return out, nil
}

func (e *Executor) searchIndex(ctx context.Context, ix *engine.Index, q bq.Query, window, order int) (indexResult, error) {
	req := bleve.NewSearchRequestOptions(q, window, 0, false)
	req.Fields = []string{engine.FieldSource}

	res, err := ix.Search(ctx, req)
	if err != nil {
		return indexResult{}, cserrors.New(cserrors.ErrCodeSearchFailed,
			fmt.Sprintf("search in index %q failed", ix.Name()), err)
	}

	out := indexResult{total: int(res.Total), hits: make([]hit, 0, len(res.Hits))}
	for i, m := range res.Hits {
		raw, _ := m.Fields[engine.FieldSource].(string)
		src, err := document.DecodeSource([]byte(raw))
		if err != nil {
			slog.Warn("search_hit_unreadable",
				slog.String("index", ix.Name()),
				slog.String("id", m.ID),
				slog.String("error", err.Error()))
			continue
		}
		boost := src.Request.BoostFactor
		if boost <= 0 {
			boost = 1
		}
		score := m.Score * boost
		out.hits = append(out.hits, hit{
			item:       document.Project(src, ix.Name(), score, e.opts.DisplayTextLength),
			score:      score,
			indexOrder: order,
			hitNumber:  i,
		})
	}
	return out, nil
}
