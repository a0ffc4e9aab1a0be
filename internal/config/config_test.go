package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("IDENTITY_BACKEND", "")
	t.Setenv("RESOLVE_DEADLINE", "")
	t.Setenv("INFERENCE_MAX_ATTEMPTS", "")
	t.Setenv("REDIS_DB", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Identity.Backend)
	assert.Equal(t, 10*time.Second, cfg.Identity.ResolveDeadline)
	assert.Equal(t, 3, cfg.Inference.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Inference.BaseDelay)
	assert.InDelta(t, 2.0, cfg.Inference.Multiplier, 0.0001)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("IDENTITY_BACKEND", "Mongo")
	t.Setenv("RESOLVE_DEADLINE", "250ms")
	t.Setenv("INFERENCE_MAX_ATTEMPTS", "0")
	t.Setenv("INFERENCE_BASE_DELAY", "not-a-duration")
	t.Setenv("APP_HOST", "127.0.0.1")
	t.Setenv("APP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMongo, cfg.Identity.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.Identity.ResolveDeadline)
	assert.Equal(t, 1, cfg.Inference.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Inference.BaseDelay)
	assert.Equal(t, "127.0.0.1:9090", cfg.App.Addr())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("redis db", func(t *testing.T) {
		t.Setenv("REDIS_DB", "zero")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("identity backend", func(t *testing.T) {
		t.Setenv("REDIS_DB", "0")
		t.Setenv("IDENTITY_BACKEND", "firestore")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("non-positive deadline falls back", func(t *testing.T) {
		t.Setenv("REDIS_DB", "0")
		t.Setenv("IDENTITY_BACKEND", "memory")
		t.Setenv("RESOLVE_DEADLINE", "-1s")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, cfg.Identity.ResolveDeadline)
	})
}
