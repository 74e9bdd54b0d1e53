package preflight

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karolberezicki/content-search-lucene/internal/config"
	"github.com/karolberezicki/content-search-lucene/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Server.SocketPath = filepath.Join(dir, "run", "cs.sock")
	cfg.Server.PIDPath = filepath.Join(dir, "run", "cs.pid")
	cfg.Inbox.Enabled = true
	cfg.Inbox.Dir = filepath.Join(dir, "inbox")
	return cfg
}

func names(results []CheckResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Name)
	}
	return out
}

func TestCheckStatus_String(t *testing.T) {
	assert.Equal(t, "PASS", StatusPass.String())
	assert.Equal(t, "WARN", StatusWarn.String())
	assert.Equal(t, "FAIL", StatusFail.String())
	assert.Equal(t, "UNKNOWN", CheckStatus(99).String())
}

func TestCheckResult_IsCritical(t *testing.T) {
	assert.True(t, CheckResult{Required: true, Status: StatusFail}.IsCritical())
	assert.False(t, CheckResult{Required: false, Status: StatusFail}.IsCritical())
	assert.False(t, CheckResult{Required: true, Status: StatusWarn}.IsCritical())
}

func TestChecker_RunAll_CreatesDirectories(t *testing.T) {
	// Given: a configuration whose directories do not exist yet
	cfg := testConfig(t)

	// When: running all checks
	c := New(WithOutput(&bytes.Buffer{}))
	results := c.RunAll(cfg)

	// Then: every directory check ran and passed
	assert.Equal(t, []string{"data_dir", "disk_space", "socket_dir", "socket_path", "inbox_dir", "file_descriptors"}, names(results))
	assert.False(t, c.HasCriticalFailures(results))
	assert.DirExists(t, cfg.Storage.DataDir)
	assert.DirExists(t, cfg.Inbox.Dir)
	assert.DirExists(t, filepath.Dir(cfg.Server.SocketPath))

	entries, err := os.ReadDir(cfg.Storage.DataDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file must be removed")
}

func TestChecker_RunAll_MemoryAndNoInbox(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.DataDir = ""
	cfg.Inbox.Enabled = false

	results := New().RunAll(cfg)

	assert.Equal(t, []string{"data_dir", "socket_dir", "socket_path", "file_descriptors"}, names(results))
	assert.Contains(t, results[0].Message, "in memory")
}

func TestChecker_CheckWritePermissions_ReadOnly(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := filepath.Join(t.TempDir(), "ro")
	require.NoError(t, os.Mkdir(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	r := New().CheckWritePermissions("data_dir", dir)

	assert.Equal(t, StatusFail, r.Status)
	assert.True(t, r.IsCritical())
}

func TestChecker_CheckSocketPath(t *testing.T) {
	c := New()
	assert.Equal(t, StatusPass, c.CheckSocketPath("/tmp/cs.sock").Status)

	long := "/tmp/" + strings.Repeat("x", MaxSocketPath)
	r := c.CheckSocketPath(long)
	assert.Equal(t, StatusFail, r.Status)
	assert.Contains(t, r.Details, "server.socket_path")
}

func TestChecker_SummaryStatus(t *testing.T) {
	c := New()
	tests := []struct {
		name    string
		results []CheckResult
		want    string
	}{
		{"all pass", []CheckResult{{Status: StatusPass, Required: true}}, "ready"},
		{"warning", []CheckResult{{Status: StatusPass}, {Status: StatusWarn}}, "ready_with_warnings"},
		{"optional failure", []CheckResult{{Status: StatusFail}}, "ready_with_warnings"},
		{"critical", []CheckResult{{Status: StatusWarn}, {Status: StatusFail, Required: true}}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.SummaryStatus(tt.results))
		})
	}
}

func TestChecker_PrintResults(t *testing.T) {
	buf := &bytes.Buffer{}
	c := New(WithOutput(buf))

	c.PrintResults([]CheckResult{
		{Name: "data_dir", Status: StatusPass, Message: "writable", Details: "/data"},
		{Name: "file_descriptors", Status: StatusWarn, Message: "256 (minimum: 1024)", Details: "Run 'ulimit -n 10240' to increase the limit"},
	})

	out := buf.String()
	assert.Contains(t, out, "[PASS] data_dir: writable")
	assert.NotContains(t, out, "/data")
	assert.Contains(t, out, "ulimit -n 10240")
	assert.Contains(t, out, "Status: READY_WITH_WARNINGS")
}

func TestCheckResult_JSONStatusName(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "disk_space", Status: StatusWarn})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"warn"`)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "100.0 MB", formatBytes(MinDiskSpaceBytes))
	assert.Equal(t, "2.0 GB", formatBytes(2<<30))
}

func TestCheckDiskSpace_ReportsIndexUsage(t *testing.T) {
	// Given: a data directory holding two indexes
	dataDir := t.TempDir()
	for _, name := range []string{"default", "news"} {
		dir := filepath.Join(storage.IndexesIn(dataDir), name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "seg.zap"), make([]byte, 1024), 0o644))
	}

	// When: checking disk space
	result := New().CheckDiskSpace(dataDir)

	// Then: the message names the directory and the indexes it holds
	assert.Equal(t, "disk_space", result.Name)
	assert.NotEqual(t, StatusFail, result.Status, result.Message)
	assert.Contains(t, result.Message, dataDir)
	assert.Contains(t, result.Message, "2 indexes use 2.0 KB")
}

func TestCheckDiskSpace_MissingDataDirFails(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	result := New().CheckDiskSpace(missing)

	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "storage.data_dir "+missing)
}

func TestIndexUsage(t *testing.T) {
	used, count, err := indexUsage(filepath.Join(t.TempDir(), "indexes"))
	require.NoError(t, err)
	assert.Zero(t, used)
	assert.Zero(t, count)
}
