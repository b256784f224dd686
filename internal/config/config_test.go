package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
log_level: "debug"
master_dsn: "postgres://u:p@localhost:5432/comments?sslmode=disable"
comments:
  auto_approve: false
  id_prefix: "cmt"
cache:
  enabled: true
  ttl_seconds: 60
nats:
  url: "nats://localhost:4222"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "./migrations", cfg.MigratePath)
	assert.False(t, cfg.Comments.AutoApprove)
	assert.True(t, cfg.Comments.AllowGuests)
	assert.Equal(t, "cmt", cfg.Comments.IDPrefix)
	assert.Equal(t, 10, cfg.Comments.DefaultLimit)
	assert.Equal(t, 100, cfg.Comments.MaxLimit)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Cache.Addr)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoad_RejectsLimitBelowDefault(t *testing.T) {
	path := writeConfig(t, `
comments:
  default_limit: 50
  max_limit: 20
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
