package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Store.SessionTTL)
	assert.Equal(t, "default", cfg.Onboarding.QuestionSet)
	assert.True(t, cfg.Onboarding.Autostart)
	assert.True(t, cfg.RevealEnabled)
	assert.Equal(t, 5*time.Second, cfg.AuthCheckTimeout)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("QUESTION_SET", "short")
	t.Setenv("ONBOARDING_AUTOSTART", "off")
	t.Setenv("REVEAL_ENABLED", "0")
	t.Setenv("FRONTEND_URL", "https://unigo.example/, https://admin.unigo.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 3, cfg.Store.RedisDB)
	assert.Equal(t, 90*time.Minute, cfg.Store.SessionTTL)
	assert.Equal(t, "short", cfg.Onboarding.QuestionSet)
	assert.False(t, cfg.Onboarding.Autostart)
	assert.False(t, cfg.RevealEnabled)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"https://unigo.example", "https://admin.unigo.example"}, cfg.AllowedOrigins())
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "soon")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Store.SweepInterval)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "etcd")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_BACKEND")
}

func TestValidateRejectsEmptyUpstream(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsNonPositiveRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")
	_, err := Load()
	assert.Error(t, err)
}
