package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/longbridgeapp/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, DefaultRedisBreakerThreshold, cfg.RedisBreaker.FailureThreshold)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roomcast.yaml")

	content := `httpAddr: ":8080"
redis:
  addr: "redis-primary:6379"
  db: 2
breaker:
  failureThreshold: 7
  timeoutSeconds: 90
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("ROOMCAST_REDIS_ADDR", "redis-override:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "redis-override:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 7, cfg.Breaker.FailureThreshold)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roomcast.yaml")

	require.NoError(t, os.WriteFile(path, []byte("breaker:\n  failureThreshold: 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}
