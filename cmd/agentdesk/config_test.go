package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.Backend)
	require.Equal(t, 30*time.Minute, cfg.Session.Timeout)
	require.Equal(t, 10, cfg.Batch.Size)
	require.Equal(t, time.Second, cfg.Batch.Pacing)
	require.Equal(t, "terminal", cfg.Log.Format)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  format: json
session:
  timeout: 5m
batch:
  size: 4
  pacing: 250ms
backend: mongo
mongo:
  uri: mongodb://localhost:27017
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, 5*time.Minute, cfg.Session.Timeout)
	require.Equal(t, 4, cfg.Batch.Size)
	require.Equal(t, 250*time.Millisecond, cfg.Batch.Pacing)
	require.Equal(t, BackendMongo, cfg.Backend)
	require.Equal(t, "agentdesk", cfg.Mongo.Database)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch:\n  size: 4\n"), 0o600))
	t.Setenv("AGENTDESK_BATCH_SIZE", "25")
	t.Setenv("AGENTDESK_BATCH_PACING", "0s")
	t.Setenv("AGENTDESK_HISTORY_REDIS_KEY", "history")
	t.Setenv("AGENTDESK_REDIS_ADDR", "localhost:6379")
	t.Setenv("AGENTDESK_DEBUG", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Batch.Size)
	require.Zero(t, cfg.Batch.Pacing)
	require.Equal(t, "history", cfg.History.RedisKey)
	require.True(t, cfg.Log.Debug)
}

func TestMalformedEnvKeepsValue(t *testing.T) {
	t.Setenv("AGENTDESK_BATCH_SIZE", "many")
	t.Setenv("AGENTDESK_SESSION_TIMEOUT", "soon")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Batch.Size)
	require.Equal(t, 30*time.Minute, cfg.Session.Timeout)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend":      func(c *Config) { c.Backend = "sqlite" },
		"mongo without uri":    func(c *Config) { c.Backend = BackendMongo },
		"zero session timeout": func(c *Config) { c.Session.Timeout = 0 },
		"history without addr": func(c *Config) { c.History.RedisKey = "history" },
		"unknown log format":   func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, DefaultConfig().Validate())
}

func TestMissingConfigFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}
