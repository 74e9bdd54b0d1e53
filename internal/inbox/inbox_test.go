package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karolberezicki/content-search-lucene/internal/document"
)

type recordingSink struct {
	mu   sync.Mutex
	reqs []document.ChangeRequest
}

func (s *recordingSink) UpdateIndex(_ context.Context, req document.ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return nil
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.reqs))
	for _, r := range s.reqs {
		out = append(out, r.ID)
	}
	return out
}

// flakySink rejects the request with id failID the first failures times.
type flakySink struct {
	recordingSink
	failID   string
	failures int
}

func (s *flakySink) UpdateIndex(ctx context.Context, req document.ChangeRequest) error {
	s.mu.Lock()
	if req.ID == s.failID && s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("queue unavailable")
	}
	s.mu.Unlock()
	return s.recordingSink.UpdateIndex(ctx, req)
}

func startInbox(t *testing.T, dir string, sink Sink, opts ...Option) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	in := New(dir, sink, append([]Option{WithSettleWindow(20 * time.Millisecond)}, opts...)...)
	go func() { done <- in.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("inbox did not stop")
		}
	})
	// Wait for the failed directory, created before watching starts.
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, FailedDir))
		return err == nil
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
}

func TestInbox_IngestsDroppedArrayInOrder(t *testing.T) {
	// Given: a running inbox
	dir := t.TempDir()
	sink := &recordingSink{}
	startInbox(t, dir, sink)

	// When: a file with two requests is dropped
	path := filepath.Join(dir, "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"a","action":"add"},{"id":"b","action":"remove"}]`), 0644))

	// Then: both are queued in order and the file is gone
	require.Eventually(t, func() bool { return len(sink.ids()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, sink.ids())
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
}

func TestInbox_PicksUpFilesPresentAtStart(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.json"), []byte(`{"id":"1"}`), 0644))
	sink := &recordingSink{}
	var ingested sync.WaitGroup
	ingested.Add(1)

	startInbox(t, dir, sink, WithIngestHook(func(n int) {
		assert.Equal(t, 1, n)
		ingested.Done()
	}))

	ingested.Wait()
	assert.Equal(t, []string{"1"}, sink.ids())
}

func TestInbox_PartialFailureRetriesOnlyUnqueuedRequests(t *testing.T) {
	// Given: a sink that rejects the second request once
	dir := t.TempDir()
	sink := &flakySink{failID: "b", failures: 1}
	startInbox(t, dir, sink, WithRetryDelay(100*time.Millisecond))

	// When: a file with three requests is dropped
	path := filepath.Join(dir, "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"a"},{"id":"b"},{"id":"c"}]`), 0644))

	// Then: the retry queues the rest without repeating the first request
	require.Eventually(t, func() bool { return len(sink.ids()) == 3 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, sink.ids())
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
}

func TestWriteRemaining(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"a"},{"id":"b"}]`), 0644))

	require.NoError(t, writeRemaining(path, []document.ChangeRequest{{ID: "b", Action: document.ActionAdd}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	reqs, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "b", reqs[0].ID)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(path), ".batch.json.tmp"))
}

func TestInbox_MovesUnparseableFileToFailed(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	startInbox(t, dir, sink)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"id":`), 0644))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, FailedDir, "bad.json"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, sink.ids())
}

func TestInbox_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	startInbox(t, dir, sink)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`{"id":"x"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".partial.json"), []byte(`{"id":"y"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "z.json"), []byte(`{"id":"z"}`), 0644))

	require.Eventually(t, func() bool { return len(sink.ids()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"z"}, sink.ids())
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantIDs []string
		wantErr bool
	}{
		{name: "single", input: `{"id":"1","title":"t"}`, wantIDs: []string{"1"}},
		{name: "array", input: " [{\"id\":\"1\"},{\"id\":\"2\"}]\n", wantIDs: []string{"1", "2"}},
		{name: "empty array", input: `[]`, wantIDs: []string{}},
		{name: "blank", input: "  \n", wantErr: true},
		{name: "truncated", input: `[{"id":"1"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs, err := Parse([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			ids := []string{}
			for _, r := range reqs {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}
