package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karolberezicki/content-search-lucene/internal/query"
	"github.com/karolberezicki/content-search-lucene/internal/search"
)

func TestDaemon_InboxFileBecomesSearchable(t *testing.T) {
	// Given: a daemon with an inbox and no periodic flush
	dir := t.TempDir()
	cfg := Config{
		SocketPath:  testSocketPath(t),
		PIDPath:     filepath.Join(dir, "d.pid"),
		Timeout:     5 * time.Second,
		InboxDir:    filepath.Join(dir, "inbox"),
		QuietPeriod: 100 * time.Millisecond,
	}
	d, err := New(cfg, newTestService(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	client := NewClient(cfg)
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)
	assert.FileExists(t, cfg.PIDPath)
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(cfg.InboxDir, "failed"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	// When: a request file is dropped
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InboxDir, "r.json"),
		[]byte(`{"id":"doc-1","title":"dropped in the inbox"}`), 0644))

	// Then: the quiet-period flush makes it searchable
	require.Eventually(t, func() bool {
		res, err := client.Search(context.Background(), search.Request{Expr: query.Field{Text: "dropped"}})
		return err == nil && res.TotalHits == 1
	}, 10*time.Second, 50*time.Millisecond)

	// And: shutdown is clean and releases the pid file
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	_, err = os.Stat(cfg.PIDPath)
	assert.True(t, os.IsNotExist(err))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
