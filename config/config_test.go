package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, "oidcstore:intents", cfg.RedisStream)
	assert.Equal(t, 30*time.Second, cfg.PendingTTL)
	assert.Equal(t, time.Hour, cfg.PruneInterval)
	assert.Equal(t, 14*24*time.Hour, cfg.TokenRetention)
	assert.Empty(t, cfg.SnapshotPath)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
http_addr: ":9090"
store_backend: redis
redis_addr: "redis:6379"
replication_delay: 250ms
prune_interval: 10m
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "oidcstore.yaml"), yaml, 0o600))
	t.Setenv("OIDCSTORE_HTTP_ADDR", ":7070")
	t.Setenv("OIDCSTORE_TOKEN_RETENTION", "48h")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTPAddr, "env overrides file")
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.ReplicationDelay)
	assert.Equal(t, 10*time.Minute, cfg.PruneInterval)
	assert.Equal(t, 48*time.Hour, cfg.TokenRetention)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "oidcstore.yaml"), []byte("http_addr: [unterminated"), 0o600))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			StoreBackend:           BackendMemory,
			PendingTTL:             time.Second,
			PruneInterval:          time.Minute,
			TokenRetention:         time.Hour,
			AuthorizationRetention: time.Hour,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.StoreBackend = "etcd" }, `unknown store_backend "etcd"`},
		{"redis without address", func(c *Config) { c.StoreBackend = BackendRedis; c.RedisStream = "s" }, "redis_addr is required"},
		{"negative delay", func(c *Config) { c.ReplicationDelay = -time.Second }, "replication_delay"},
		{"zero prune interval", func(c *Config) { c.PruneInterval = 0 }, "prune_interval must be positive"},
		{"zero pending ttl", func(c *Config) { c.PendingTTL = 0 }, "pending_ttl must be positive"},
		{"negative rate limit", func(c *Config) { c.AdminRateLimit = -1 }, "admin_rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("env backend rejected", func(t *testing.T) {
		t.Setenv("OIDCSTORE_STORE_BACKEND", "sqlite")
		_, err := LoadConfig(t.TempDir())
		assert.ErrorContains(t, err, "unknown store_backend")
	})
}
