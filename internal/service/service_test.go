package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karolberezicki/content-search-lucene/internal/config"
	"github.com/karolberezicki/content-search-lucene/internal/document"
	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
	"github.com/karolberezicki/content-search-lucene/internal/query"
	"github.com/karolberezicki/content-search-lucene/internal/search"
)

func memoryConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Storage.DataDir = ""
	cfg.Indexes.Names = []string{"default", "news"}
	cfg.Extraction.Enabled = false
	return cfg
}

func openService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestService_UpdateProcessSearch(t *testing.T) {
	// Given: an in-memory service with a queued document
	s := openService(t, memoryConfig())
	ctx := context.Background()
	require.NoError(t, s.UpdateIndex(ctx, document.ChangeRequest{ID: "1", Action: document.ActionAdd, Title: "Hello world"}))

	// When: nothing is processed yet
	res, err := s.GetSearchResults(ctx, search.Request{Expr: query.Field{Text: "hello"}})
	require.NoError(t, err)

	// Then: the document is not visible
	assert.Zero(t, res.TotalHits)

	// When: the queue is processed
	rep, err := s.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)

	// Then: the document is found in the default index
	res, err = s.GetSearchResults(ctx, search.Request{Expr: query.Field{Text: "hello"}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "1", res.Items[0].ID)
	assert.Equal(t, "default", res.Items[0].NamedIndex)

	// Then: both searches are counted, the first as a miss
	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Search.Total)
	assert.EqualValues(t, 1, st.Search.ZeroResults)
	assert.Equal(t, []string{"field:hello"}, st.Search.RecentMisses)
}

func TestService_GetNamedIndexes(t *testing.T) {
	s := openService(t, memoryConfig())
	assert.Equal(t, []string{"default", "news"}, s.GetNamedIndexes())
}

func TestService_ResetIndex(t *testing.T) {
	s := openService(t, memoryConfig())
	ctx := context.Background()
	require.NoError(t, s.UpdateIndex(ctx, document.ChangeRequest{ID: "n1", NamedIndex: "news", Title: "breaking"}))
	require.NoError(t, s.UpdateIndex(ctx, document.ChangeRequest{ID: "d1", Title: "breaking"}))
	_, err := s.ProcessQueue(ctx)
	require.NoError(t, err)

	// When: one index is reset
	require.NoError(t, s.ResetIndex(ctx, "news"))

	// Then: only the other index still answers
	res, err := s.GetSearchResults(ctx, search.Request{Expr: query.Field{Text: "breaking"}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "d1", res.Items[0].ID)

	// And: unknown indexes are rejected
	err = s.ResetIndex(ctx, "nope")
	assert.Equal(t, cserrors.ErrCodeUnknownIndex, cserrors.GetCode(err))
}

func TestService_QueueStatusAndTruncate(t *testing.T) {
	s := openService(t, memoryConfig())
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.UpdateIndex(ctx, document.ChangeRequest{ID: id}))
	}
	require.NoError(t, s.UpdateIndex(ctx, document.ChangeRequest{ID: "n", NamedIndex: "news"}))

	st, err := s.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Pending)
	assert.Len(t, st.Indexes, 2)

	n, err := s.TruncateQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	st, err = s.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Pending)
}

func TestService_QueueSurvivesRestart(t *testing.T) {
	// Given: a disk-backed service with a queued request
	cfg := memoryConfig()
	cfg.Storage.DataDir = t.TempDir()
	ctx := context.Background()

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, s.UpdateIndex(ctx, document.ChangeRequest{ID: "1", Title: "durable"}))
	require.NoError(t, s.Close())

	// When: the service is reopened and processes the queue
	s = openService(t, cfg)
	_, err = s.ProcessQueue(ctx)
	require.NoError(t, err)

	// Then: the request was applied
	res, err := s.GetSearchResults(ctx, search.Request{Expr: query.Field{Text: "durable"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalHits)

	// And: status reports the document
	st, err := s.Status(ctx)
	require.NoError(t, err)
	var docs uint64
	for _, ix := range st.Indexes {
		docs += ix.Documents
	}
	assert.Equal(t, uint64(1), docs)
}

func TestService_ClockDrivesPublicationWindow(t *testing.T) {
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(-time.Hour)
	s, err := Open(context.Background(), memoryConfig(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.UpdateIndex(ctx, document.ChangeRequest{ID: "1", Title: "scheduled", PublicationStart: &start}))
	_, err = s.ProcessQueue(ctx)
	require.NoError(t, err)

	res, err := s.GetSearchResults(ctx, search.Request{Expr: query.Field{Text: "scheduled"}})
	require.NoError(t, err)
	assert.Zero(t, res.TotalHits)

	now = start
	res, err = s.GetSearchResults(ctx, search.Request{Expr: query.Field{Text: "scheduled"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalHits)
}
