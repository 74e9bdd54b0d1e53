package search

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karolberezicki/content-search-lucene/internal/document"
	"github.com/karolberezicki/content-search-lucene/internal/engine"
	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
	"github.com/karolberezicki/content-search-lucene/internal/query"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T) *engine.Registry {
	t.Helper()
	reg := engine.NewRegistry("")
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func index(t *testing.T, reg *engine.Registry, name string, reqs ...document.ChangeRequest) {
	t.Helper()
	ix, err := reg.Open(name)
	require.NoError(t, err)
	require.NoError(t, ix.Write(context.Background(), func(w *engine.Writer) error {
		for _, r := range reqs {
			clean, _ := document.Sanitize(r, document.DefaultLimits())
			rec, err := document.Build(document.Source{Request: clean, ExtractedText: "hidden extracted text"})
			if err != nil {
				return err
			}
			if err := w.Put(rec); err != nil {
				return err
			}
		}
		return nil
	}))
}

func newExecutor(reg *engine.Registry) *Executor {
	return NewExecutor(reg, Options{Now: func() time.Time { return testNow }})
}

func ids(res Results) []string {
	out := make([]string, 0, len(res.Items))
	for _, it := range res.Items {
		out = append(out, it.ID)
	}
	return out
}

func TestSearch_PagingSevenByThree(t *testing.T) {
	// Given: seven matching documents
	reg := newRegistry(t)
	var reqs []document.ChangeRequest
	for i := 1; i <= 7; i++ {
		reqs = append(reqs, document.ChangeRequest{ID: fmt.Sprintf("d%d", i), Title: "paging test"})
	}
	index(t, reg, "default", reqs...)
	ex := newExecutor(reg)

	// When: paging three at a time
	// Then: pages hold 3, 3, 1 and 0 items and every page reports the total
	seen := map[string]bool{}
	for page, want := range map[int]int{1: 3, 2: 3, 3: 1, 4: 0} {
		res, err := ex.Search(context.Background(), Request{Expr: query.Field{Text: "paging"}, Page: page, PageSize: 3})
		require.NoError(t, err)
		assert.Len(t, res.Items, want, "page %d", page)
		assert.Equal(t, 7, res.TotalHits)
		for _, id := range ids(res) {
			assert.False(t, seen[id], "duplicate %s", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, 7)
}

func TestSearch_IdentityIsAnyOfPrincipals(t *testing.T) {
	reg := newRegistry(t)
	index(t, reg, "default",
		document.ChangeRequest{ID: "mine", Title: "acl", AccessControlList: []string{"U:myself"}},
		document.ChangeRequest{ID: "group", Title: "acl", AccessControlList: []string{"G:me"}},
		document.ChangeRequest{ID: "both", Title: "acl", AccessControlList: []string{"G:me", "U:myself"}},
		document.ChangeRequest{ID: "none", Title: "acl", AccessControlList: []string{"G:others"}},
	)
	ex := newExecutor(reg)
	ctx := context.Background()

	// When: searching with an identity of two principals
	res, err := ex.Search(ctx, Request{Expr: query.Field{Text: "acl"}, Identity: []string{"U:myself", "G:me"}})
	require.NoError(t, err)

	// Then: documents readable by either principal are returned
	assert.ElementsMatch(t, []string{"mine", "group", "both"}, ids(res))

	// And: an explicit AND expression narrows to documents holding both
	res, err = ex.Search(ctx, Request{Expr: query.ACL{Principals: []string{"U:myself", "G:me"}, Op: query.OpAnd}})
	require.NoError(t, err)
	assert.Equal(t, []string{"both"}, ids(res))
}

func TestSearch_PublicationWindow(t *testing.T) {
	past, future := testNow.Add(-time.Hour), testNow.Add(time.Hour)
	reg := newRegistry(t)
	index(t, reg, "default",
		document.ChangeRequest{ID: "live", Title: "window", PublicationStart: &past, PublicationEnd: &future},
		document.ChangeRequest{ID: "pending", Title: "window", PublicationStart: &future},
		document.ChangeRequest{ID: "expired", Title: "window", PublicationEnd: &past},
		document.ChangeRequest{ID: "ending-now", Title: "window", PublicationEnd: &testNow},
		document.ChangeRequest{ID: "starting-now", Title: "window", PublicationStart: &testNow},
	)

	res, err := newExecutor(reg).Search(context.Background(), Request{Expr: query.Field{Text: "window"}})
	require.NoError(t, err)

	// Then: start is inclusive and end exclusive
	assert.ElementsMatch(t, []string{"live", "starting-now"}, ids(res))
	assert.Equal(t, 2, res.TotalHits)
}

func TestSearch_DisplayTextCapAndMarkerBeyondIt(t *testing.T) {
	// Given: display text over 4,300 characters with a marker at its end
	long := strings.Repeat("lorem ", 720) + "endmarker phrase"
	require.Greater(t, len(long), 4300)
	reg := newRegistry(t)
	index(t, reg, "default", document.ChangeRequest{ID: "long", Title: "t", DisplayText: long, Metadata: "secret"})

	// When: searching the marker
	res, err := newExecutor(reg).Search(context.Background(), Request{Expr: query.Field{Text: "endmarker"}})
	require.NoError(t, err)

	// Then: the document is found and its display text is capped
	require.Len(t, res.Items, 1)
	assert.Equal(t, 500, utf8.RuneCountInString(res.Items[0].DisplayText))
	assert.NotContains(t, res.Items[0].DisplayText, "hidden extracted text")
	assert.Equal(t, "default", res.Items[0].NamedIndex)
}

func TestSearch_DocumentBoostReordersHits(t *testing.T) {
	reg := newRegistry(t)
	index(t, reg, "default",
		document.ChangeRequest{ID: "plain", Title: "boost boost boost"},
		document.ChangeRequest{ID: "boosted", Title: "boost and much more text around it", BoostFactor: 100},
	)

	res, err := newExecutor(reg).Search(context.Background(), Request{Expr: query.Field{Text: "boost"}})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "boosted", res.Items[0].ID)
	assert.Greater(t, res.Items[0].Score, res.Items[1].Score)
}

func TestSearch_MergesIndexesAndHonorsSelection(t *testing.T) {
	reg := newRegistry(t)
	index(t, reg, "alpha", document.ChangeRequest{ID: "a1", Title: "shared"})
	index(t, reg, "beta", document.ChangeRequest{ID: "b1", Title: "shared"})
	ex := newExecutor(reg)
	ctx := context.Background()

	// When: no index is selected every index is searched
	res, err := ex.Search(ctx, Request{Expr: query.Field{Text: "shared"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalHits)

	// Then: equal scores fall back to index order
	assert.Equal(t, []string{"a1", "b1"}, ids(res))

	// And: a selection restricts the search
	res, err = ex.Search(ctx, Request{Expr: query.Field{Text: "shared"}, Indexes: []string{"beta"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, ids(res))
	assert.Equal(t, "beta", res.Items[0].NamedIndex)
}

func TestSearch_Errors(t *testing.T) {
	reg := newRegistry(t)
	index(t, reg, "default", document.ChangeRequest{ID: "1", Title: "x"})
	ex := newExecutor(reg)
	ctx := context.Background()

	_, err := ex.Search(ctx, Request{Expr: query.Field{Text: "x"}, Indexes: []string{"missing"}})
	assert.Equal(t, cserrors.ErrCodeUnknownIndex, cserrors.GetCode(err))

	_, err = ex.Search(ctx, Request{Expr: query.Field{Text: "x"}, Page: -1})
	assert.Equal(t, cserrors.ErrCodeInvalidPaging, cserrors.GetCode(err))

	res, err := ex.Search(ctx, Request{Expr: query.Field{Text: "x AND"}})
	assert.Equal(t, cserrors.ErrCodeInvalidQuery, cserrors.GetCode(err))
	assert.Empty(t, res.Items)
}

func TestSearch_PageSizeIsClamped(t *testing.T) {
	reg := newRegistry(t)
	index(t, reg, "default",
		document.ChangeRequest{ID: "1", Title: "x"},
		document.ChangeRequest{ID: "2", Title: "x"},
	)
	ex := NewExecutor(reg, Options{MaxPageSize: 1})
	res, err := ex.Search(context.Background(), Request{Expr: query.Field{Text: "x"}, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 1, res.PageSize)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, 2, res.TotalHits)
}
