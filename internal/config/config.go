// Package config loads and validates all runtime configuration for the
// gateway.
//
// Configuration is read from environment variables (preferred for
// containers) or from a config.yaml file in the working directory.
// Environment variables take precedence over the YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	LogLevel string

	// GatewayAPIKey is the key clients must present to the gateway.
	GatewayAPIKey string

	// BackendAPIKey is forwarded to every backend as the upstream credential.
	BackendAPIKey string

	// Backends holds the static backend pool configuration (C4).
	Backends BackendConfig

	// RateLimit controls C2's sliding window rate limiter.
	RateLimit RateLimitConfig

	// Admission controls C3's per-client concurrency queue.
	Admission AdmissionConfig

	// Request controls C6/C7 lifetime and idle caps.
	Request RequestConfig

	// Reaper controls C10's idle-bookkeeping eviction loop.
	Reaper ReaperConfig

	// CircuitBreaker controls the optional C4 health-driven active subset.
	CircuitBreaker CircuitBreakerConfig

	// PII controls log redaction.
	PII PIIConfig
}

// BackendConfig holds the four named backend pools.
type BackendConfig struct {
	// Chat is the round-robined pool backing POST /v1/chat/completions.
	Chat []string
	// Text2SQL is a single backend URL.
	Text2SQL string
	// Embed is a single backend URL.
	Embed string
	// Rerank is a single backend URL.
	Rerank string
}

// RateLimitConfig controls the per-client sliding window + burst limiter.
type RateLimitConfig struct {
	// MaxRPS is the sustained requests/sec allowed per client.
	MaxRPS float64
	// Window is the sliding window size. Default: 1s.
	Window time.Duration
	// Burst is the minimum request allowance per Window: the effective
	// per-window limit is the larger of Burst and MaxRPS × Window.
	Burst int
	// Backend selects the limiter implementation: "inprocess" (default) or "redis".
	Backend string
	// RedisURL is the connection string used when Backend == "redis".
	RedisURL string
}

// AdmissionConfig controls the per-client counting semaphore.
type AdmissionConfig struct {
	// MaxInflight is the maximum concurrent in-flight requests per client.
	MaxInflight int64
	// QueueTimeout is the maximum time a request may wait for a free slot.
	QueueTimeout time.Duration
}

// RequestConfig controls unary/streaming lifetime and idle caps.
type RequestConfig struct {
	// MaxLifetime bounds the total request duration (unary and streaming).
	MaxLifetime time.Duration
	// StreamIdleTimeout bounds the silence between two upstream SSE chunks.
	StreamIdleTimeout time.Duration
}

// ReaperConfig controls the background idle-state eviction loop.
type ReaperConfig struct {
	// IdleHorizon is how long a client entry may sit untouched before eviction.
	IdleHorizon time.Duration
	// Period is how often the reaper sweeps.
	Period time.Duration
}

// CircuitBreakerConfig controls the optional health-driven active subset.
type CircuitBreakerConfig struct {
	Enabled         bool
	ErrorThreshold  int
	TimeWindow      time.Duration
	HalfOpenTimeout time.Duration
}

// PIIConfig controls log redaction.
type PIIConfig struct {
	Enabled bool
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("MAX_RPS_PER_IP", 50.0)
	v.SetDefault("RPS_WINDOW_SECS", 1.0)
	v.SetDefault("RPS_BURST", 100)
	v.SetDefault("RATE_LIMIT_BACKEND", "inprocess")

	v.SetDefault("MAX_INFLIGHT_PER_IP", 120)
	v.SetDefault("QUEUE_TIMEOUT_SECS", 2.0)

	v.SetDefault("MAX_REQUEST_SECS", 5400.0)
	v.SetDefault("STREAM_IDLE_TIMEOUT_SECS", 180.0)

	v.SetDefault("STATE_IDLE_HORIZON_SECS", 900.0)
	v.SetDefault("STATE_REAP_PERIOD_SECS", 60.0)

	v.SetDefault("CIRCUIT_BREAKER_ENABLED", false)
	v.SetDefault("CB_ERROR_THRESHOLD", 5)
	v.SetDefault("CB_TIME_WINDOW", "60s")
	v.SetDefault("CB_HALF_OPEN_TIMEOUT", "30s")

	v.SetDefault("ENABLE_PII_REDACTION", true)

	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		GatewayAPIKey: v.GetString("GATEWAY_API_KEY"),
		BackendAPIKey: v.GetString("BACKEND_API_KEY"),

		Backends: BackendConfig{
			Chat:     splitAndTrim(v.GetString("CHAT_BACKENDS")),
			Text2SQL: strings.TrimSpace(v.GetString("TEXT2SQL_BACKEND")),
			Embed:    strings.TrimSpace(v.GetString("EMBED_BACKEND")),
			Rerank:   strings.TrimSpace(v.GetString("RERANK_BACKEND")),
		},

		RateLimit: RateLimitConfig{
			MaxRPS:  v.GetFloat64("MAX_RPS_PER_IP"),
			Window:  secondsToDuration(v.GetFloat64("RPS_WINDOW_SECS")),
			Burst:   v.GetInt("RPS_BURST"),
			Backend: strings.ToLower(v.GetString("RATE_LIMIT_BACKEND")),
		},

		Admission: AdmissionConfig{
			MaxInflight:  int64(v.GetInt("MAX_INFLIGHT_PER_IP")),
			QueueTimeout: secondsToDuration(v.GetFloat64("QUEUE_TIMEOUT_SECS")),
		},

		Request: RequestConfig{
			MaxLifetime:       secondsToDuration(v.GetFloat64("MAX_REQUEST_SECS")),
			StreamIdleTimeout: secondsToDuration(v.GetFloat64("STREAM_IDLE_TIMEOUT_SECS")),
		},

		Reaper: ReaperConfig{
			IdleHorizon: secondsToDuration(v.GetFloat64("STATE_IDLE_HORIZON_SECS")),
			Period:      secondsToDuration(v.GetFloat64("STATE_REAP_PERIOD_SECS")),
		},

		CircuitBreaker: CircuitBreakerConfig{
			Enabled:         v.GetBool("CIRCUIT_BREAKER_ENABLED"),
			ErrorThreshold:  v.GetInt("CB_ERROR_THRESHOLD"),
			TimeWindow:      v.GetDuration("CB_TIME_WINDOW"),
			HalfOpenTimeout: v.GetDuration("CB_HALF_OPEN_TIMEOUT"),
		},

		PII: PIIConfig{
			Enabled: v.GetBool("ENABLE_PII_REDACTION"),
		},
	}

	if v.IsSet("REDIS_URL") {
		cfg.RateLimit.RedisURL = v.GetString("REDIS_URL")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks all semantic constraints that cannot be expressed as defaults.
func (c *Config) validate() error {
	if c.GatewayAPIKey == "" || c.BackendAPIKey == "" {
		return fmt.Errorf("config: GATEWAY_API_KEY and BACKEND_API_KEY must be set")
	}
	if len(c.Backends.Chat) == 0 {
		return fmt.Errorf("config: CHAT_BACKENDS must be set")
	}
	if c.Backends.Text2SQL == "" {
		return fmt.Errorf("config: TEXT2SQL_BACKEND must be set")
	}
	if c.Backends.Embed == "" {
		return fmt.Errorf("config: EMBED_BACKEND must be set")
	}
	if c.Backends.Rerank == "" {
		return fmt.Errorf("config: RERANK_BACKEND must be set")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error", c.LogLevel)
	}

	switch c.RateLimit.Backend {
	case "inprocess", "redis":
	default:
		return fmt.Errorf("config: invalid RATE_LIMIT_BACKEND %q; must be one of: inprocess, redis", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend == "redis" && c.RateLimit.RedisURL == "" {
		return fmt.Errorf("config: REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
	}

	if c.RateLimit.MaxRPS <= 0 {
		return fmt.Errorf("config: MAX_RPS_PER_IP must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("config: RPS_WINDOW_SECS must be > 0")
	}
	if c.Admission.MaxInflight < 1 {
		return fmt.Errorf("config: MAX_INFLIGHT_PER_IP must be ≥ 1")
	}
	if c.Admission.QueueTimeout <= 0 {
		return fmt.Errorf("config: QUEUE_TIMEOUT_SECS must be > 0")
	}
	if c.Request.MaxLifetime <= 0 {
		return fmt.Errorf("config: MAX_REQUEST_SECS must be > 0")
	}
	if c.Request.StreamIdleTimeout <= 0 {
		return fmt.Errorf("config: STREAM_IDLE_TIMEOUT_SECS must be > 0")
	}
	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.ErrorThreshold < 1 {
			return fmt.Errorf("config: CB_ERROR_THRESHOLD must be ≥ 1")
		}
		if c.CircuitBreaker.TimeWindow <= 0 {
			return fmt.Errorf("config: CB_TIME_WINDOW must be a positive duration")
		}
	}

	return nil
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
