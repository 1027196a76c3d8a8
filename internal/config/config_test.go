package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.ListenAddress)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, "tools_v2", cfg.Store.ToolsCollection)
	assert.Equal(t, "audit_logs", cfg.Store.AuditCollection)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL())
	assert.Equal(t, time.Hour, cfg.Cache.MaxAge())
	assert.Equal(t, 30*time.Second, cfg.Cache.RefreshTimeout())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TOOLS_STORE_BACKEND", "redis")
	t.Setenv("TOOLS_STORE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("TOOLS_CACHE_TTLSECONDS", "60")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, "redis.internal:6380", cfg.Store.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.Cache.TTL())
}

func TestLoad_InvalidBackend(t *testing.T) {
	t.Setenv("TOOLS_STORE_BACKEND", "dynamo")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}

func TestLoad_CacheWindowValidation(t *testing.T) {
	t.Setenv("TOOLS_CACHE_TTLSECONDS", "3600")
	t.Setenv("TOOLS_CACHE_MAXAGESECONDS", "60")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must exceed ttl")
}
