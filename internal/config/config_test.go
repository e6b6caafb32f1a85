package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certified/internal/ratelimit"
)

func TestDefaults(t *testing.T) {
	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr)
	assert.Equal(t, filepath.Join("data", LogFileName), filepath.Clean(cfg.LogPath()))
	assert.True(t, cfg.Fsync)
	assert.Equal(t, 5*time.Second, cfg.EnqueueTimeout)
	assert.Equal(t, 1024, cfg.MaxEnqueued)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.AdminDevBypass)
	assert.Nil(t, cfg.RateLimit.Policy)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CERTIFIED_HTTP_ADDR", ":9090")
	t.Setenv("CERTIFIED_ADMIN_DEV_BYPASS", "true")
	t.Setenv("CERTIFIED_RATE_LIMIT_LEGACY", "100:60")
	t.Setenv("CERTIFIED_RATE_LIMIT_REDIS_ADDR", "redis:6379")

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.True(t, cfg.AdminDevBypass)
	require.NotNil(t, cfg.RateLimit.Policy)
	assert.Equal(t, 100, cfg.RateLimit.Policy.Burst)
	assert.InDelta(t, 100.0/60.0, cfg.RateLimit.Policy.RefillPerSecond, 1e-9)
	assert.Equal(t, "redis:6379", cfg.RateLimit.RedisAddr)
}

func TestExplicitRatePolicyBeatsLegacy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "certified.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rate_limit:
  burst: 10
  refill_per_second: 2.5
  legacy: "100:60"
`), 0o600))

	v, err := New(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, &ratelimit.Policy{Burst: 10, RefillPerSecond: 2.5}, cfg.RateLimit.Policy)
}

func TestMalformedRateLimitIsAnError(t *testing.T) {
	t.Setenv("CERTIFIED_RATE_LIMIT_LEGACY", "lots")
	v, err := New("")
	require.NoError(t, err)
	_, err = Load(v)
	assert.ErrorIs(t, err, ratelimit.ErrInvalidPolicy)

	_, err = New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFlagsWin(t *testing.T) {
	t.Setenv("CERTIFIED_HTTP_ADDR", ":9090")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", "", "")
	require.NoError(t, flags.Parse([]string{"--addr", ":7070"}))

	v, err := New("")
	require.NoError(t, err)
	require.NoError(t, BindFlag(v, KeyHTTPAddr, flags, "addr"))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)

	assert.Error(t, BindFlag(v, KeyHTTPAddr, flags, "nope"))
}
