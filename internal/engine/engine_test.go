package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
)

func newMemIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := OpenIndex("test", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func put(t *testing.T, ix *Index, recs ...Record) {
	t.Helper()
	require.NoError(t, ix.Write(context.Background(), func(w *Writer) error {
		for _, rec := range recs {
			if err := w.Put(rec); err != nil {
				return err
			}
		}
		return nil
	}))
}

func searchIDs(t *testing.T, ix *Index, req *bleve.SearchRequest) []string {
	t.Helper()
	res, err := ix.Search(context.Background(), req)
	require.NoError(t, err)
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids
}

func termReq(field, term string) *bleve.SearchRequest {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return bleve.NewSearchRequest(q)
}

func TestAnalyze_TextFieldsLowercaseWithoutFolding(t *testing.T) {
	// Given: mixed case text with an accented word
	terms, err := Analyze(FieldTitle, "Det är Svårt, eller HUR?")

	// Then: terms are lower-cased and keep their accents
	require.NoError(t, err)
	assert.Equal(t, []string{"det", "är", "svårt", "eller", "hur"}, terms)
}

func TestAnalyze_ItemTypeSplitsOnWhitespaceOnly(t *testing.T) {
	terms, err := Analyze(FieldItemType, "EPiServer.Common.Comment, EPiServer.Common")
	require.NoError(t, err)
	assert.Equal(t, []string{"EPiServer.Common.Comment,", "EPiServer.Common"}, terms)
}

func TestIndex_WriteCommitsAndSearches(t *testing.T) {
	// Given: an index with two documents
	ix := newMemIndex(t)
	put(t, ix,
		Record{ID: "1", Fields: map[string]interface{}{FieldID: "1", FieldTitle: "Hello World"}, Source: []byte(`{"n":1}`)},
		Record{ID: "2", Fields: map[string]interface{}{FieldID: "2", FieldTitle: "other", FieldACL: []string{"G:me", "U:myself"}}, Source: []byte(`{"n":2}`)},
	)

	// When: searching a lower-cased text term and an exact keyword
	// Then: both resolve to the right document
	assert.Equal(t, []string{"1"}, searchIDs(t, ix, termReq(FieldTitle, "hello")))
	assert.Equal(t, []string{"2"}, searchIDs(t, ix, termReq(FieldACL, "U:myself")))
	assert.Empty(t, searchIDs(t, ix, termReq(FieldACL, "u:myself")))

	// And: the stored source round-trips
	src, ok, err := ix.Get(context.Background(), "2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"n":2}`, string(src))

	count, err := ix.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestIndex_FailedWriteCommitsNothing(t *testing.T) {
	// Given: an empty index
	ix := newMemIndex(t)

	// When: a write stages a document and then fails
	boom := errors.New("boom")
	err := ix.Write(context.Background(), func(w *Writer) error {
		require.NoError(t, w.Put(Record{ID: "1", Fields: map[string]interface{}{FieldTitle: "partial"}}))
		return boom
	})

	// Then: the error surfaces and nothing is visible
	assert.ErrorIs(t, err, boom)
	_, ok, err := ix.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriter_ReadsItsOwnWrites(t *testing.T) {
	// Given: a committed document
	ix := newMemIndex(t)
	put(t, ix, Record{ID: "1", Fields: map[string]interface{}{FieldVPathPrefix: []string{"a"}}, Source: []byte("old")})

	require.NoError(t, ix.Write(context.Background(), func(w *Writer) error {
		// When: the writer replaces it
		require.NoError(t, w.Put(Record{ID: "1", Source: []byte("new")}))

		// Then: reads through the writer see the staged version
		src, ok, err := w.Get(context.Background(), "1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "new", string(src))

		// And: a staged delete hides the document from Find
		w.Delete("1")
		q := bleve.NewTermQuery("a")
		q.SetField(FieldVPathPrefix)
		ids, err := w.Find(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, ids)

		exists, err := w.Exists(context.Background(), "1")
		require.NoError(t, err)
		assert.False(t, exists)
		return nil
	}))

	_, ok, err := ix.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndex_Terms(t *testing.T) {
	ix := newMemIndex(t)
	put(t, ix,
		Record{ID: "1", Fields: map[string]interface{}{FieldTitle: "beta alpha"}},
		Record{ID: "2", Fields: map[string]interface{}{FieldTitle: "alpha gamma"}},
	)

	terms, err := ix.Terms(FieldTitle)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, terms)
}

func TestIndex_ResetAndClose(t *testing.T) {
	// Given: an on-disk index with one document
	ix, err := OpenIndex("disk", filepath.Join(t.TempDir(), "disk"))
	require.NoError(t, err)
	put(t, ix, Record{ID: "1", Fields: map[string]interface{}{FieldTitle: "kept"}})

	// When: it is reset
	require.NoError(t, ix.Reset())

	// Then: it is empty but usable
	count, err := ix.DocCount()
	require.NoError(t, err)
	assert.Zero(t, count)
	put(t, ix, Record{ID: "2", Fields: map[string]interface{}{FieldTitle: "fresh"}})

	// And: after close every operation reports the closed code
	require.NoError(t, ix.Close())
	_, err = ix.DocCount()
	assert.Equal(t, cserrors.ErrCodeIndexClosed, cserrors.GetCode(err))
	assert.NoError(t, ix.Close())
}

func TestIndex_ReopensFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist")
	ix, err := OpenIndex("persist", path)
	require.NoError(t, err)
	put(t, ix, Record{ID: "1", Fields: map[string]interface{}{FieldTitle: "durable"}, Source: []byte("s")})
	require.NoError(t, ix.Close())

	reopened, err := OpenIndex("persist", path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	assert.Equal(t, []string{"1"}, searchIDs(t, reopened, termReq(FieldTitle, "durable")))
}

func TestRegistry_OpenListClose(t *testing.T) {
	// Given: a disk registry
	root := t.TempDir()
	reg := NewRegistry(root)

	// When: indexes are opened out of order
	_, err := reg.Open("zeta")
	require.NoError(t, err)
	a, err := reg.Open("alpha")
	require.NoError(t, err)
	again, err := reg.Open("alpha")
	require.NoError(t, err)

	// Then: the same instance is reused and names are sorted
	assert.Same(t, a, again)
	assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
	assert.Len(t, reg.All(), 2)

	// And: an invalid name is refused
	_, err = reg.Open("../escape")
	assert.Equal(t, cserrors.ErrCodeUnknownIndex, cserrors.GetCode(err))

	require.NoError(t, reg.Close())
	_, err = reg.Open("alpha")
	assert.Error(t, err)

	// And: a new registry discovers both indexes
	reg2 := NewRegistry(root)
	require.NoError(t, reg2.Discover())
	assert.Equal(t, []string{"alpha", "zeta"}, reg2.Names())
	require.NoError(t, reg2.Close())
}
