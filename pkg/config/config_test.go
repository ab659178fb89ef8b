package config_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/triad/pkg/config"
	"github.com/Mindburn-Labs/triad/pkg/gate"
)

var envKeys = []string{
	"TRIAD_SECRET", "TRIAD_MAX_AGE_MS", "TRIAD_MAX_FAILURES", "TRIAD_FAILURE_WINDOW_MS",
	"TRIAD_NONCE_RETENTION_MS", "TRIAD_REQUIRED_PERMISSIONS", "TRIAD_PROFILE", "LOG_LEVEL",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "DATABASE_URL", "TRIAD_JOURNAL_PATH",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

// TestLoad_Defaults verifies that Load() falls back to the gate defaults.
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, gate.DefaultMaxAge, cfg.MaxAge)
	assert.Equal(t, gate.DefaultMaxFailures, cfg.MaxFailures)
	assert.Equal(t, gate.DefaultFailureWindow, cfg.FailureWindow)
	assert.Zero(t, cfg.NonceRetention)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.RequiredPermissions)

	_, err = gate.New(mustGateConfig(t, cfg), nil, nil)
	assert.ErrorIs(t, err, gate.ErrEmptySecret, "there is no default secret")
}

// TestLoad_Overrides verifies 12-factor overrides.
func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRIAD_SECRET", "s3cret")
	t.Setenv("TRIAD_MAX_AGE_MS", "60000")
	t.Setenv("TRIAD_MAX_FAILURES", "2")
	t.Setenv("TRIAD_FAILURE_WINDOW_MS", "1000")
	t.Setenv("TRIAD_NONCE_RETENTION_MS", "120000")
	t.Setenv("TRIAD_REQUIRED_PERMISSIONS", "read, exec,")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("DATABASE_URL", "postgres://triad@db:5432/triad")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.MaxAge)
	assert.Equal(t, 2, cfg.MaxFailures)
	assert.Equal(t, time.Second, cfg.FailureWindow)
	assert.Equal(t, 2*time.Minute, cfg.NonceRetention)
	assert.Equal(t, []string{"read", "exec"}, cfg.RequiredPermissions)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "postgres://triad@db:5432/triad", cfg.DatabaseURL)

	gc := mustGateConfig(t, cfg)
	assert.Equal(t, []gate.Permission{gate.PermRead, gate.PermExec}, gc.RequiredPermissions)
	assert.Equal(t, []byte("s3cret"), gc.Secret)
	_, err = gate.New(gc, nil, nil)
	assert.NoError(t, err)
}

func TestLoad_RejectsMalformedNumbers(t *testing.T) {
	for _, key := range []string{"TRIAD_MAX_AGE_MS", "TRIAD_MAX_FAILURES", "TRIAD_FAILURE_WINDOW_MS", "TRIAD_NONCE_RETENTION_MS", "REDIS_DB"} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, "five")
			_, err := config.Load()
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestGateConfig_UnknownPermission(t *testing.T) {
	cfg := &config.Config{Secret: "k", RequiredPermissions: []string{"fly"}}
	_, err := cfg.GateConfig()
	assert.ErrorContains(t, err, "fly")
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, (&config.Config{LogLevel: in}).SlogLevel(), in)
	}
}

const profileYAML = `
name: retail
max_age_ms: 30000
max_failures: 3
required_permissions: [read]
sanitizer:
  secret_keys: [pin, cvv]
shadow:
  account_types: [current]
  currency: EUR
  region: eu-west-1
  flags: [verified]
  min_balance: 10
  max_balance: 20
  min_processing_ms: 5
  max_processing_ms: 6
`

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadProfile(t *testing.T) {
	p, err := config.LoadProfile(writeProfile(t, profileYAML))
	require.NoError(t, err)

	assert.Equal(t, "retail", p.Name)
	require.NotNil(t, p.MaxAgeMs)
	assert.Equal(t, int64(30000), *p.MaxAgeMs)
	assert.Nil(t, p.FailureWindowMs)
	require.NotNil(t, p.Shadow)
	assert.Equal(t, "EUR", p.Shadow.Currency)
}

func TestLoad_AppliesProfile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRIAD_SECRET", "k")
	t.Setenv("TRIAD_FAILURE_WINDOW_MS", "5000")
	t.Setenv("TRIAD_PROFILE", writeProfile(t, profileYAML))

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.MaxAge)
	assert.Equal(t, 3, cfg.MaxFailures)
	assert.Equal(t, 5*time.Second, cfg.FailureWindow, "unset profile fields keep the env value")
	assert.Equal(t, []string{"pin", "cvv"}, cfg.SanitizerKeys)
	require.NotNil(t, cfg.ShadowProfile)
	assert.Equal(t, "eu-west-1", cfg.ShadowProfile.Region)

	_, err = gate.New(mustGateConfig(t, cfg), nil, nil)
	assert.NoError(t, err)
}

func TestLoadProfile_Errors(t *testing.T) {
	_, err := config.LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.LoadProfile(writeProfile(t, "max_failures: [oops"))
	assert.ErrorContains(t, err, "parse profile")

	_, err = config.LoadProfile(writeProfile(t, "shadow:\n  currency: EUR\n"))
	assert.ErrorContains(t, err, "account_types")
}

func TestLoad_RejectsOverflowingMillis(t *testing.T) {
	for _, key := range []string{"TRIAD_MAX_AGE_MS", "TRIAD_FAILURE_WINDOW_MS", "TRIAD_NONCE_RETENTION_MS"} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, "9223372036854775")
			_, err := config.Load()
			require.ErrorIs(t, err, config.ErrDurationRange)
			assert.ErrorContains(t, err, key)
		})
	}

	clearEnv(t)
	t.Setenv("TRIAD_MAX_AGE_MS", "9223372036854")
	cfg, err := config.Load()
	require.NoError(t, err, "the largest representable value is accepted")
	assert.Equal(t, 9223372036854*time.Millisecond, cfg.MaxAge)
}

func TestLoadProfile_RejectsOverflowingMillis(t *testing.T) {
	_, err := config.LoadProfile(writeProfile(t, "failure_window_ms: 9223372036854775807\n"))
	require.ErrorIs(t, err, config.ErrDurationRange)
	assert.ErrorContains(t, err, "failure_window_ms")
}

func TestGateConfig_ZeroMaxFailuresAllowsNone(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRIAD_SECRET", "k")
	t.Setenv("TRIAD_MAX_FAILURES", "0")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxFailures)

	gc := mustGateConfig(t, cfg)
	assert.Equal(t, gate.NoFailureBudget, gc.MaxFailures)

	g, err := gate.New(gc, nil, nil)
	require.NoError(t, err)
	req, err := gate.SignRequest([]byte("k"), gate.SecureRequest{Mask: 1, Timestamp: time.Now().UnixMilli(), Nonce: "n"})
	require.NoError(t, err)
	req.Seal = "AAAA"
	_, outcome := g.Process(context.Background(), req, "data", "fp")
	assert.Equal(t, gate.Shadow, outcome)
}

func mustGateConfig(t *testing.T, cfg *config.Config) gate.Config {
	t.Helper()
	gc, err := cfg.GateConfig()
	require.NoError(t, err)
	return gc
}
