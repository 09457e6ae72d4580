package config

import (
	"testing"
	"time"

	"pivotdesk/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresComputeURL(t *testing.T) {
	t.Setenv("COMPUTE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COMPUTE_URL", "http://compute:9000")
	t.Setenv("PORT", "")
	t.Setenv("COMPUTE_TIMEOUT", "")
	t.Setenv("CACHE_TTL", "")
	t.Setenv("CACHE_MAX_ENTRIES", "")
	t.Setenv("PIVOT_DECIMALS", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("COMPUTE_MAX_CONCURRENCY", "")
	t.Setenv("PIVOT_SESSION_IDLE_TTL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Compute.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 1024, cfg.Cache.MaxEntries)
	assert.Equal(t, 2, cfg.Pivot.DefaultDecimals)
	assert.Equal(t, "./data", cfg.Data.Dir)
	assert.Equal(t, 4, cfg.Compute.MaxConcurrent)
	assert.Equal(t, 2*time.Hour, cfg.Pivot.SessionIdleTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COMPUTE_URL", "http://compute:9000")
	t.Setenv("COMPUTE_TIMEOUT", "5s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("PIVOT_DECIMALS", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Compute.Timeout)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Cache.RedisURL)
	assert.Equal(t, 4, cfg.Pivot.DefaultDecimals)
}

func TestLoadRejectsBadDecimals(t *testing.T) {
	t.Setenv("COMPUTE_URL", "http://compute:9000")
	t.Setenv("PIVOT_DECIMALS", "12")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsZeroConcurrency(t *testing.T) {
	t.Setenv("COMPUTE_URL", "http://compute:9000")
	t.Setenv("COMPUTE_MAX_CONCURRENCY", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestLoadRejectsUnboundedCache(t *testing.T) {
	t.Setenv("COMPUTE_URL", "http://compute:9000")
	t.Setenv("CACHE_MAX_ENTRIES", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
