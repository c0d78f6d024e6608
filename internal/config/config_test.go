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

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Server.TimeoutSeconds)
	assert.Empty(t, cfg.DB.DSN)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 1024, cfg.Ingest.BufferSize)
	assert.True(t, cfg.Ingest.PersistUnknown)
	assert.Equal(t, 5000, cfg.Feed.WriteTimeoutMs)
	assert.False(t, cfg.Simulator.Enabled)
	assert.Equal(t, "Googlebot", cfg.Report.CompareA)
	assert.Equal(t, "GPTBot", cfg.Report.CompareB)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
  timeout_seconds: 30
db:
  dsn: postgres://localhost/crawlwatch
ingest:
  persist_unknown: false
simulator:
  enabled: true
  max_parallel: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/crawlwatch", cfg.DB.DSN)
	assert.False(t, cfg.Ingest.PersistUnknown)
	assert.True(t, cfg.Simulator.Enabled)
	assert.Equal(t, 2, cfg.Simulator.MaxParallel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Server: ServerConfig{Port: 8080, TimeoutSeconds: 60},
		Ingest: IngestConfig{BufferSize: 64},
		Feed:   FeedConfig{WriteTimeoutMs: 1000},
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.Server.Port = 0
	require.Error(t, bad.Validate())

	bad = valid
	bad.Ingest.BufferSize = -1
	require.Error(t, bad.Validate())

	bad = valid
	bad.Feed.WriteTimeoutMs = 0
	require.Error(t, bad.Validate())

	bad = valid
	bad.Simulator = SimulatorConfig{Enabled: true, MaxParallel: 0}
	require.Error(t, bad.Validate())
}

func TestDurationHelpers(t *testing.T) {
	cfg := Config{
		Server: ServerConfig{TimeoutSeconds: 30},
		Feed:   FeedConfig{WriteTimeoutMs: 250},
	}
	assert.Equal(t, 30*time.Second, cfg.ServerTimeout())
	assert.Equal(t, 250*time.Millisecond, cfg.FeedWriteTimeout())
}
