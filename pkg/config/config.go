package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Mindburn-Labs/triad/pkg/gate"
	"github.com/Mindburn-Labs/triad/pkg/shadow"
)

// Config holds gate and runtime configuration.
type Config struct {
	Secret              string
	MaxAge              time.Duration
	MaxFailures         int
	FailureWindow       time.Duration
	NonceRetention      time.Duration
	RequiredPermissions []string

	LogLevel string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseURL  string
	JournalPath  string
	OTLPEndpoint string
	ProfilePath  string

	// Set by ApplyProfile.
	SanitizerKeys []string
	ShadowProfile *shadow.Profile
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Secret:        os.Getenv("TRIAD_SECRET"),
		LogLevel:      envOr("LOG_LEVEL", "INFO"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JournalPath:   os.Getenv("TRIAD_JOURNAL_PATH"),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ProfilePath:   os.Getenv("TRIAD_PROFILE"),
	}

	var err error
	if cfg.MaxAge, err = envMillis("TRIAD_MAX_AGE_MS", gate.DefaultMaxAge); err != nil {
		return nil, err
	}
	if cfg.MaxFailures, err = envInt("TRIAD_MAX_FAILURES", gate.DefaultMaxFailures); err != nil {
		return nil, err
	}
	if cfg.FailureWindow, err = envMillis("TRIAD_FAILURE_WINDOW_MS", gate.DefaultFailureWindow); err != nil {
		return nil, err
	}
	if cfg.NonceRetention, err = envMillis("TRIAD_NONCE_RETENTION_MS", 0); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if v := os.Getenv("TRIAD_REQUIRED_PERMISSIONS"); v != "" {
		cfg.RequiredPermissions = splitList(v)
	}

	if cfg.ProfilePath != "" {
		p, err := LoadProfile(cfg.ProfilePath)
		if err != nil {
			return nil, err
		}
		cfg.ApplyProfile(p)
	}
	return cfg, nil
}

// GateConfig converts c into a gate configuration.
func (c *Config) GateConfig() (gate.Config, error) {
	perms := make([]gate.Permission, 0, len(c.RequiredPermissions))
	for _, name := range c.RequiredPermissions {
		p, err := gate.ParsePermission(name)
		if err != nil {
			return gate.Config{}, fmt.Errorf("required permissions: %w", err)
		}
		perms = append(perms, p)
	}
	// An explicit 0 here means no tolerance; the gate reads 0 as "default".
	maxFailures := c.MaxFailures
	if maxFailures == 0 {
		maxFailures = gate.NoFailureBudget
	}
	return gate.Config{
		Secret:              []byte(c.Secret),
		MaxAge:              c.MaxAge,
		MaxFailures:         maxFailures,
		FailureWindow:       c.FailureWindow,
		NonceRetention:      c.NonceRetention,
		RequiredPermissions: perms,
		SanitizerKeys:       c.SanitizerKeys,
		ShadowProfile:       c.ShadowProfile,
	}, nil
}

// SlogLevel maps LogLevel onto a slog level. Unknown values mean INFO.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", key, err)
	}
	return n, nil
}

func envMillis(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", key, err)
	}
	d, err := millis(n)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", key, err)
	}
	return d, nil
}

// ErrDurationRange is returned for millisecond values a time.Duration cannot
// hold.
var ErrDurationRange = errors.New("duration out of range")

const maxMillis = int64(math.MaxInt64 / int64(time.Millisecond))

func millis(n int64) (time.Duration, error) {
	if n > maxMillis || n < -maxMillis {
		return 0, fmt.Errorf("%w: %d ms", ErrDurationRange, n)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
