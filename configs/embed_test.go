package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karolberezicki/content-search-lucene/internal/config"
)

func TestProjectConfigTemplate_LoadsAsDefaults(t *testing.T) {
	// Given: the template written as a deployment's config file
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectFileName), []byte(ProjectConfigTemplate), 0o644))

	// When: loading it
	cfg, err := config.Load(dir)

	// Then: it parses and every value is the default
	require.NoError(t, err)
	def := config.NewConfig()
	assert.Equal(t, def.Indexes, cfg.Indexes)
	assert.Equal(t, def.Queue.FlushInterval, cfg.Queue.FlushInterval)
	assert.Equal(t, def.Server.Timeout, cfg.Server.Timeout)
}
