package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "index", cfg.Store.IndexTable)
	assert.Equal(t, "documents", cfg.Store.DocumentsTable)
	assert.Equal(t, 0.2, cfg.Search.Above)
	assert.Equal(t, -1, cfg.Search.Top)
	assert.Equal(t, -1, cfg.Crawler.MaxDepth)
	assert.Equal(t, 0, cfg.Crawler.MaxFetches)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte(`
store:
  driver: bolt
  bolt:
    path: /tmp/x.db
indexer:
  flushThreshold: 250
crawler:
  maxDepth: 2
  timeout: 3s
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o644))
	t.Setenv("IR_CRAWLER_WORKERS", "3")
	t.Setenv("IR_REDIS_ADDR", "cache:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bolt", cfg.Store.Driver)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Bolt.Path)
	assert.Equal(t, 250, cfg.Indexer.FlushThreshold)
	assert.Equal(t, 2, cfg.Crawler.MaxDepth)
	assert.Equal(t, 3*time.Second, cfg.Crawler.Timeout)
	assert.Equal(t, 3, cfg.Crawler.Workers)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	// untouched sections keep their defaults
	assert.Equal(t, 0.2, cfg.Search.Above)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("IR_STORE_DRIVER", "mongo")
	_, err := Load("")
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
