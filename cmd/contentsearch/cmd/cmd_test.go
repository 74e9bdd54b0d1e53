package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karolberezicki/content-search-lucene/internal/config"
	"github.com/karolberezicki/content-search-lucene/internal/daemon"
	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
	"github.com/karolberezicki/content-search-lucene/internal/query"
	"github.com/karolberezicki/content-search-lucene/internal/search"
	"github.com/karolberezicki/content-search-lucene/internal/service"
	"github.com/karolberezicki/content-search-lucene/pkg/version"
)

// writeConfig writes a contentsearch.yaml for an isolated deployment and
// returns its directory.
func writeConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	dir := t.TempDir()
	socket := filepath.Join("/tmp", fmt.Sprintf("contentsearch-cmd-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { _ = os.Remove(socket) })

	yaml := fmt.Sprintf(`storage:
  data_dir: %s
indexes:
  names: [default, news]
queue:
  flush_interval: "0"
  quiet_period: "0"
extraction:
  enabled: false
server:
  socket_path: %s
  pid_path: %s
  timeout: 5s
`, filepath.Join(dir, "data"), socket, filepath.Join(dir, "d.pid"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectFileName), []byte(yaml), 0644))
	return dir
}

// startDaemon runs a daemon for the deployment in dir until the test ends.
func startDaemon(t *testing.T, dir string) {
	t.Helper()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	svc, err := service.Open(ctx, cfg)
	require.NoError(t, err)
	d, err := daemon.New(daemon.ConfigFrom(cfg), svc)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
		_ = svc.Close()
	})

	client := daemon.NewClient(daemon.ConfigFrom(cfg))
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	out, err := runCmd(t, "", "--help")
	require.NoError(t, err)
	for _, sub := range []string{"init", "serve", "submit", "search", "indexes", "reset", "queue", "status", "logs", "doctor", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "", "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version+"\n", out)

	out, err = runCmd(t, "", "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Program, info.Program)
}

func TestRootCmd_ProfileFlags(t *testing.T) {
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.prof")
	mem := filepath.Join(dir, "mem.prof")

	_, err := runCmd(t, "", "version", "--short", "--profile-cpu", cpu, "--profile-mem", mem)
	require.NoError(t, err)

	assert.FileExists(t, cpu)
	assert.FileExists(t, mem)
}

func TestInitCmd(t *testing.T) {
	// Given: an empty config directory
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := filepath.Join(t.TempDir(), "deploy")

	// When: writing the template
	out, err := runCmd(t, "", "init", "--config-dir", dir)

	// Then: the file exists and loads
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")
	_, err = config.Load(dir)
	require.NoError(t, err)

	// When: running again without --force
	_, err = runCmd(t, "", "init", "--config-dir", dir)
	assert.ErrorContains(t, err, "already exists")

	// When: writing the resolved configuration over it
	_, err = runCmd(t, "", "init", "--config-dir", dir, "--force", "--resolved")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, config.ProjectFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "flush_interval: 30s")
}

func TestDoctorCmd(t *testing.T) {
	// Given: a configuration whose directories do not exist yet
	cfgDir := writeConfig(t)

	// When: running the checks
	out, err := runCmd(t, "", "doctor", "--config-dir", cfgDir)

	// Then: they pass and report each directory
	require.NoError(t, err)
	assert.Contains(t, out, "[PASS] data_dir: writable")
	assert.Contains(t, out, "[PASS] socket_path")
	assert.Contains(t, out, "Status: READY")

	out, err = runCmd(t, "", "doctor", "--config-dir", cfgDir, "--json")
	require.NoError(t, err)
	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.NotEmpty(t, results)
}

func TestLogsCmd_TailsAndFilters(t *testing.T) {
	// Given: a log file with three JSON lines
	path := filepath.Join(t.TempDir(), "contentsearch.log")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"service_opened"}`+"\n"+
			`{"time":"2026-01-02T10:00:01Z","level":"WARN","msg":"inbox_file_rejected","file":"bad.json"}`+"\n"+
			`{"time":"2026-01-02T10:00:02Z","level":"INFO","msg":"queue_flush_complete"}`+"\n"), 0o644))

	// When: asking for warnings only
	out, err := runCmd(t, "", "logs", "--file", path, "--level", "warn")

	// Then: only the warning is printed, without color
	require.NoError(t, err)
	assert.Contains(t, out, "WARN  inbox_file_rejected file=bad.json")
	assert.NotContains(t, out, "service_opened")

	// When: tailing one line with a filter that matches nothing in it
	out, err = runCmd(t, "", "logs", "--file", path, "-n", "1", "--filter", "service_")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))

	_, err = runCmd(t, "", "logs", "--file", path, "--filter", "(")
	assert.Error(t, err)
}

func TestSearchFlags_Request(t *testing.T) {
	tests := []struct {
		name  string
		flags searchFlags
		text  string
		want  query.Expr
	}{
		{
			name: "plain text",
			text: "hello world",
			want: query.Field{Text: "hello world"},
		},
		{
			name:  "escaped field",
			flags: searchFlags{field: "id", escaped: true},
			text:  "ns:item/3",
			want:  query.Field{Text: "ns:item/3", Field: "id", Escaped: true},
		},
		{
			name:  "fuzzy",
			flags: searchFlags{field: "title", fuzzy: 0.7},
			text:  "repotr",
			want:  query.Fuzzy{Text: "repotr", Field: "title", Similarity: 0.7},
		},
		{
			name:  "proximity",
			flags: searchFlags{slop: 2},
			text:  "annual report",
			want:  query.Proximity{Text: "annual report", Slop: 2},
		},
		{
			name:  "filters only",
			flags: searchFlags{vpath: "/a/ b /"},
			want:  query.VirtualPath{Nodes: []string{"a", "b"}},
		},
		{
			name:  "text with category",
			flags: searchFlags{categories: []string{"news"}},
			text:  "q",
			want: query.Group{Op: query.OpAnd, Children: []query.Expr{
				query.Field{Text: "q"},
				query.Category{Categories: []string{"news"}, Op: query.OpAnd},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.flags.request(tt.text, strings.NewReader(""))
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Expr)
		})
	}
}

func TestSearchFlags_RequestErrors(t *testing.T) {
	_, err := searchFlags{}.request("  ", strings.NewReader(""))
	assert.Error(t, err)

	_, err = searchFlags{exprFile: "-"}.request("text", strings.NewReader(""))
	assert.Error(t, err)

	req, err := searchFlags{exprFile: "-", page: 2}.request("", strings.NewReader(`{"type":"field","text":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, query.Field{Text: "x"}, req.Expr)
	assert.Equal(t, 2, req.Page)
}

func TestCLI_SubmitProcessSearch(t *testing.T) {
	// Given: a running daemon and a request file
	dir := writeConfig(t)
	startDaemon(t, dir)
	reqFile := filepath.Join(t.TempDir(), "reqs.json")
	require.NoError(t, os.WriteFile(reqFile, []byte(`[
		{"id":"1","title":"Annual report 2030","categories":["finance"]},
		{"id":"2","namedIndex":"news","title":"Annual party"}
	]`), 0644))

	// When: submitting with --process
	out, err := runCmd(t, "", "--config-dir", dir, "submit", "--process", reqFile)
	require.NoError(t, err)
	assert.Contains(t, out, "queued 2 requests")
	assert.Contains(t, out, "processed 2 requests")

	// Then: search finds both, and filters narrow it
	out, err = runCmd(t, "", "--config-dir", dir, "--json", "search", "annual")
	require.NoError(t, err)
	var res search.Results
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.TotalHits)

	out, err = runCmd(t, "", "--config-dir", dir, "search", "--category", "finance", "annual")
	require.NoError(t, err)
	assert.Contains(t, out, "Annual report 2030")
	assert.NotContains(t, out, "Annual party")

	// And: stdin submission works too
	out, err = runCmd(t, `{"id":"3","title":"from stdin"}`, "--config-dir", dir, "submit", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "queued 1 requests")

	out, err = runCmd(t, "", "--config-dir", dir, "queue", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "1 pending")
}

func TestCLI_AdminCommands(t *testing.T) {
	dir := writeConfig(t)
	startDaemon(t, dir)

	out, err := runCmd(t, "", "--config-dir", dir, "indexes")
	require.NoError(t, err)
	assert.Equal(t, "default\nnews\n", out)

	_, err = runCmd(t, "", "--config-dir", dir, "reset", "news")
	assert.Error(t, err)
	out, err = runCmd(t, "", "--config-dir", dir, "reset", "--yes", "news")
	require.NoError(t, err)
	assert.Contains(t, out, "index news reset")

	_, err = runCmd(t, "", "--config-dir", dir, "reset", "--yes", "missing")
	assert.Equal(t, cserrors.ErrCodeUnknownIndex, cserrors.GetCode(err))

	_, err = runCmd(t, `{"id":"x"}`, "--config-dir", dir, "submit", "-")
	require.NoError(t, err)
	out, err = runCmd(t, "", "--config-dir", dir, "queue", "truncate", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "discarded 1 queued requests")

	out, err = runCmd(t, "", "--config-dir", dir, "queue", "process")
	require.NoError(t, err)
	assert.Contains(t, out, "queue was empty")

	out, err = runCmd(t, "", "--config-dir", dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "data"))
	assert.Contains(t, out, "0 pending")
}

func TestCLI_DaemonNotRunning(t *testing.T) {
	dir := writeConfig(t)

	_, err := runCmd(t, "", "--config-dir", dir, "search", "anything")
	assert.Equal(t, cserrors.ErrCodeDaemonUnavailable, cserrors.GetCode(err))
	assert.Equal(t, "Start the daemon with 'contentsearch serve'", suggestion(err))
}
