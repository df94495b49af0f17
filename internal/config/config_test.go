package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-analytics-api/middleware/ratelimit/domain"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Chdir(t.TempDir()) // sem .env

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":3000" {
		t.Fatalf("expected :3000, got %q", cfg.ListenAddr)
	}
	if cfg.RateTimeout != 250*time.Millisecond {
		t.Fatalf("expected 250ms timeout, got %s", cfg.RateTimeout)
	}
	auth := cfg.Policies[PolicyAuth]
	if auth.Policy.MaxRequests != 4 || auth.Policy.Window != time.Minute || auth.FailureMode != domain.FailClosed {
		t.Fatalf("unexpected auth policy %+v", auth)
	}
	if cfg.Policies[PolicyViews].FailureMode != domain.FailOpen {
		t.Fatalf("views must fail open by default")
	}
	if cfg.RateStatsPrefix != domain.DefaultStatsPrefix || cfg.RateStatsBucket != "minute" || cfg.RateStatsTrackKeys {
		t.Fatalf("unexpected stats defaults: %q %q %v", cfg.RateStatsPrefix, cfg.RateStatsBucket, cfg.RateStatsTrackKeys)
	}
	if statsInsideCounters(cfg.RateStatsPrefix, cfg.RateKeyPrefix) {
		t.Fatalf("default stats prefix %q overlaps counter prefix %q", cfg.RateStatsPrefix, cfg.RateKeyPrefix)
	}
}

func TestLoad_ReadsStatsOptions(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("RATE_STATS_BUCKET", "none")
	t.Setenv("RATE_STATS_TRACK_KEYS", "true")
	t.Setenv("RATE_STATS_PREFIX", "rl-stats")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RateStatsBucket != "none" || !cfg.RateStatsTrackKeys || cfg.RateStatsPrefix != "rl-stats" {
		t.Fatalf("stats options not read: %q %v %q", cfg.RateStatsBucket, cfg.RateStatsTrackKeys, cfg.RateStatsPrefix)
	}
}

func TestLoad_MalformedValueFallsBackWithWarning(t *testing.T) {
	hook := logtest.NewGlobal()
	t.Cleanup(hook.Reset)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CONCURRENCY_MAX", "lots")
	t.Setenv("RATE_STATS_TTL", "1 day")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ConcurrencyMax != 100 || cfg.RateStatsTTL != 24*time.Hour {
		t.Fatalf("expected defaults, got %d %s", cfg.ConcurrencyMax, cfg.RateStatsTTL)
	}

	warned := map[string]bool{}
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			if k, ok := e.Data["key"].(string); ok {
				warned[k] = true
			}
		}
	}
	if !warned["CONCURRENCY_MAX"] || !warned["RATE_STATS_TTL"] {
		t.Fatalf("expected warnings for both malformed keys, got %v", warned)
	}
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Chdir(t.TempDir())

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	t.Setenv("LISTEN_ADDR", "")
	os.Unsetenv("LISTEN_ADDR")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=fromfile\nLISTEN_ADDR=:9999\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.JWTSecret != "fromfile" || cfg.ListenAddr != ":9999" {
		t.Fatalf("expected values from .env, got %q %q", cfg.JWTSecret, cfg.ListenAddr)
	}
}

func TestLoad_PoliciesFileOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "policies.yaml")
	body := `policies:
  auth:
    max_requests: 10
    window: 30s
    failure_mode: open
  uploads:
    max_requests: 2
    window: 1m
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write policies: %v", err)
	}
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("RATE_POLICIES_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	auth := cfg.Policies[PolicyAuth]
	if auth.Policy.MaxRequests != 10 || auth.Policy.Window != 30*time.Second || auth.FailureMode != domain.FailOpen {
		t.Fatalf("expected overridden auth policy, got %+v", auth)
	}
	if up := cfg.Policies["uploads"]; up.Policy.ID != "uploads" || up.FailureMode != domain.FailClosed {
		t.Fatalf("expected added uploads policy, got %+v", up)
	}
	if _, ok := cfg.Policies[PolicyViews]; !ok {
		t.Fatalf("defaults not named in the file must survive")
	}
}

func TestApplyPolicies_RejectsBadFailureMode(t *testing.T) {
	c := Config{}
	err := c.applyPolicies([]byte("policies:\n  auth:\n    max_requests: 1\n    window: 1s\n    failure_mode: maybe\n"))
	if err == nil {
		t.Fatalf("expected error for unknown failure mode")
	}
}

func validConfig() Config {
	return Config{
		DBDriver:        "sqlite",
		JWTSecret:       "x",
		JWTExpiry:       time.Hour,
		RateStore:       StoreMemory,
		RateTimeout:     time.Second,
		RateStatsBucket: "minute",
		Policies:        DefaultPolicies(),
	}
}

func TestValidate_RejectsInvalidPolicy(t *testing.T) {
	c := validConfig()
	c.Policies[PolicyAuth] = RoutePolicy{Policy: domain.Policy{ID: PolicyAuth, MaxRequests: 0, Window: time.Minute}}

	err := c.Validate()
	if !errors.Is(err, domain.ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestValidate_RejectsPolicyIDWithSeparator(t *testing.T) {
	c := validConfig()
	c.Policies["a:b"] = RoutePolicy{Policy: domain.Policy{ID: "a:b", MaxRequests: 1, Window: time.Minute}}

	if err := c.Validate(); !errors.Is(err, domain.ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestValidate_Table(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown store":        func(c *Config) { c.RateStore = "etcd" },
		"redis without addr":   func(c *Config) { c.RateStore = StoreRedis; c.RedisAddr = "" },
		"unknown driver":       func(c *Config) { c.DBDriver = "mysql" },
		"zero timeout":         func(c *Config) { c.RateTimeout = 0 },
		"negative pool":        func(c *Config) { c.ConcurrencyMax = -1 },
		"missing policy":       func(c *Config) { delete(c.Policies, PolicyViews) },
		"unknown stats bucket": func(c *Config) { c.RateStatsBucket = "hour" },
		"stats under counters": func(c *Config) { c.RateKeyPrefix = "ratelimit"; c.RateStatsPrefix = "ratelimit:stats" },
		"stats equal counters": func(c *Config) { c.RateKeyPrefix = "rl"; c.RateStatsPrefix = "rl" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
