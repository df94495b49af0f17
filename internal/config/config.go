package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"media-analytics-api/middleware/ratelimit/domain"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Nomes das políticas usadas pelas rotas da API.
const (
	PolicyAuth       = "auth"
	PolicyViews      = "views"
	PolicyMediaWrite = "media-write"
	PolicyAnalytics  = "analytics"
)

// Backends de contador aceitos em RATE_STORE.
const (
	StoreRedis      = "redis"
	StoreRedisWatch = "redis-watch"
	StoreMemory     = "memory"
)

// RoutePolicy é uma política do limiter mais o comportamento da rota quando o
// store está fora.
type RoutePolicy struct {
	Policy      domain.Policy
	FailureMode domain.FailureMode
}

type Config struct {
	ListenAddr string

	DBDriver string
	DBDSN    string

	JWTSecret string
	JWTExpiry time.Duration

	RateStore     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RateKeyPrefix string
	RateTimeout   time.Duration
	TrustXFF      bool
	AddHeaders    bool

	RateStatsEnabled   bool
	RateStatsPrefix    string
	RateStatsTTL       time.Duration
	RateStatsBucket    string
	RateStatsTrackKeys bool

	ConcurrencyMax     int
	ConcurrencyTimeout time.Duration

	LogLevel  string
	LogFormat string

	Policies map[string]RoutePolicy
}

// DefaultPolicies são as políticas usadas quando RATE_POLICIES_FILE não é
// informado (ou não cita a política).
func DefaultPolicies() map[string]RoutePolicy {
	return map[string]RoutePolicy{
		PolicyAuth: {
			Policy: domain.Policy{ID: PolicyAuth, MaxRequests: 4, Window: 60 * time.Second},
		},
		PolicyViews: {
			Policy:      domain.Policy{ID: PolicyViews, MaxRequests: 60, Window: 60 * time.Second},
			FailureMode: domain.FailOpen,
		},
		PolicyMediaWrite: {
			Policy: domain.Policy{ID: PolicyMediaWrite, MaxRequests: 30, Window: 60 * time.Second},
		},
		PolicyAnalytics: {
			Policy:      domain.Policy{ID: PolicyAnalytics, MaxRequests: 30, Window: 60 * time.Second},
			FailureMode: domain.FailOpen,
		},
	}
}

// Load lê .env (se existir), as variáveis de ambiente e o arquivo de políticas.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("config: could not read .env")
	}

	cfg := Config{}
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":3000")
	cfg.DBDriver = strings.ToLower(getenvDefault("DB_DRIVER", "sqlite"))
	cfg.DBDSN = getenvDefault("DB_DSN", "media.db")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.JWTExpiry = getenvDurationDefault("JWT_EXPIRY", 24*time.Hour)

	cfg.RateStore = strings.ToLower(getenvDefault("RATE_STORE", StoreRedis))
	cfg.RedisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.RateKeyPrefix = getenvDefault("RATE_KEY_PREFIX", domain.DefaultKeyPrefix)
	cfg.RateTimeout = getenvDurationDefault("RATE_TIMEOUT", 250*time.Millisecond)
	cfg.TrustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", true)

	cfg.RateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.RateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", domain.DefaultStatsPrefix)
	cfg.RateStatsBucket = strings.ToLower(getenvDefault("RATE_STATS_BUCKET", "minute"))
	cfg.RateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)
	cfg.RateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)

	cfg.ConcurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.ConcurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "text")

	cfg.Policies = DefaultPolicies()
	if path := os.Getenv("RATE_POLICIES_FILE"); path != "" {
		if err := cfg.loadPoliciesFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type policyFile struct {
	Policies map[string]policyEntry `yaml:"policies"`
}

type policyEntry struct {
	MaxRequests int64         `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
	FailureMode string        `yaml:"failure_mode"`
}

// loadPoliciesFile sobrescreve (ou adiciona) políticas a partir de um YAML:
//
//	policies:
//	  auth:
//	    max_requests: 4
//	    window: 60s
//	    failure_mode: closed
func (c *Config) loadPoliciesFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read policies file: %w", err)
	}
	return c.applyPolicies(raw)
}

func (c *Config) applyPolicies(raw []byte) error {
	var f policyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("config: parse policies file: %w", err)
	}
	if c.Policies == nil {
		c.Policies = make(map[string]RoutePolicy)
	}
	for id, e := range f.Policies {
		mode, err := domain.ParseFailureMode(e.FailureMode)
		if err != nil {
			return fmt.Errorf("config: policy %s: %w", id, err)
		}
		c.Policies[id] = RoutePolicy{
			Policy:      domain.Policy{ID: id, MaxRequests: e.MaxRequests, Window: e.Window},
			FailureMode: mode,
		}
	}
	return nil
}

// Validate rejeita configuração que só falharia em tempo de requisição.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.JWTExpiry <= 0 {
		return errors.New("JWT_EXPIRY must be > 0")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	switch c.RateStore {
	case StoreRedis, StoreRedisWatch:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("REDIS_ADDR is required for redis rate stores")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("RATE_STORE must be redis, redis-watch or memory, got %q", c.RateStore)
	}
	if c.RateTimeout <= 0 {
		return errors.New("RATE_TIMEOUT must be > 0")
	}
	if c.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	switch c.RateStatsBucket {
	case "minute", "none":
	default:
		return fmt.Errorf("RATE_STATS_BUCKET must be minute or none, got %q", c.RateStatsBucket)
	}
	if statsInsideCounters(c.RateStatsPrefix, c.RateKeyPrefix) {
		return fmt.Errorf("RATE_STATS_PREFIX %q must not live under RATE_KEY_PREFIX %q", c.RateStatsPrefix, c.RateKeyPrefix)
	}
	for _, name := range []string{PolicyAuth, PolicyViews, PolicyMediaWrite, PolicyAnalytics} {
		if _, ok := c.Policies[name]; !ok {
			return fmt.Errorf("missing rate limit policy %q", name)
		}
	}
	for name, rp := range c.Policies {
		if err := rp.Policy.Validate(); err != nil {
			return fmt.Errorf("policy %s: %w", name, err)
		}
	}
	return nil
}

// statsInsideCounters reporta se as chaves de estatística cairiam no mesmo
// namespace dos contadores (prefix:<política>:<identidade>).
func statsInsideCounters(statsPrefix, keyPrefix string) bool {
	sp := strings.Trim(statsPrefix, ":")
	if sp == "" {
		sp = domain.DefaultStatsPrefix
	}
	kp := strings.Trim(keyPrefix, ":")
	if kp == "" {
		kp = domain.DefaultKeyPrefix
	}
	return strings.HasPrefix(sp+":", kp+":")
}
