package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  allowed_origins:
    - https://app.example.com
storage:
  driver: sqlite
  database_path: envelopes.db
  cache_enabled: true
feed:
  base_url: https://feed.example.com/v1
  token: ${TEST_FEED_TOKEN}
  accounts:
    - user_id: 1
      account_id: 10
      feed_account_ref: acc-abc
scheduler:
  interval: 5m
  max_parallel_accounts: 2
logging:
  level: debug
  format: json
`)
	t.Setenv("TEST_FEED_TOKEN", "secret-token")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.True(t, cfg.Storage.CacheEnabled)
	assert.Equal(t, "secret-token", cfg.Feed.Token)
	require.Len(t, cfg.Feed.Accounts, 1)
	assert.Equal(t, "acc-abc", cfg.Feed.Accounts[0].FeedAccountRef)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 2, cfg.Scheduler.MaxParallelAccounts)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 4, cfg.Scheduler.MaxParallelAccounts)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9191")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/envelopes")
	t.Setenv("FEED_BASE_URL", "https://feed.example.com/v1")
	t.Setenv("FEED_TOKEN", "env-token")

	cfg := LoadFromEnv()
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/envelopes", cfg.Storage.DatabaseURL)
	assert.Equal(t, "env-token", cfg.Feed.Token)
}

func TestLoadOrEnv_FallsBackToEnv(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := LoadOrEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
}
