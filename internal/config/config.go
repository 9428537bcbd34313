package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Auth modes for the HTTP API.
const (
	AuthAPIKey = "api-key"
	AuthJWT    = "jwt"
	AuthNone   = "none"
)

// Jitter modes for artifact confidence.
const (
	JitterFixed  = "fixed"
	JitterRandom = "random"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP API
	ListenAddr      string        `envconfig:"LISTEN_ADDR" default:":8090"`
	AuthMode        string        `envconfig:"AUTH_MODE" default:"api-key"`
	APIKey          string        `envconfig:"API_KEY"`
	JWTSecret       string        `envconfig:"JWT_SECRET"`
	JWTIssuer       string        `envconfig:"JWT_ISSUER"`
	RateLimitRPS    int           `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst  int           `envconfig:"RATE_LIMIT_BURST" default:"200"`
	CORSOrigins     string        `envconfig:"CORS_ORIGINS"`
	TLSCert         string        `envconfig:"TLS_CERT"`
	TLSKey          string        `envconfig:"TLS_KEY"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Storage
	StoreDriver     string `envconfig:"STORE_DRIVER" default:"sqlite"`
	DatabasePath    string `envconfig:"DATABASE_PATH" default:"contextd.db"`
	ConflictRetries int    `envconfig:"CONFLICT_RETRIES" default:"3"`

	// Triggers and artifacts
	TriggerCatalogPath string `envconfig:"TRIGGER_CATALOG_PATH"`
	ConfidenceJitter   string `envconfig:"CONFIDENCE_JITTER" default:"fixed"`
	JitterSeed         int64  `envconfig:"JITTER_SEED"`
	ArtifactCacheSize  int    `envconfig:"ARTIFACT_CACHE_SIZE" default:"256"`

	// Slack notifications (optional; falls back to log notifications)
	SlackBotToken      string `envconfig:"SLACK_BOT_TOKEN"`
	SlackNotifyChannel string `envconfig:"SLACK_NOTIFY_CHANNEL"`
}

// SlackEnabled returns true if trigger notifications should go to Slack.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackNotifyChannel != ""
}

// TLSEnabled returns true if both a certificate and key are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Validate checks enumerated settings and mode-specific requirements.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want sqlite or memory)", c.StoreDriver)
	}

	switch c.AuthMode {
	case AuthAPIKey:
		if c.APIKey == "" {
			return fmt.Errorf("API_KEY is required when AUTH_MODE=api-key")
		}
	case AuthJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	case AuthNone:
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}

	switch c.ConfidenceJitter {
	case JitterFixed, JitterRandom:
	default:
		return fmt.Errorf("unknown CONFIDENCE_JITTER %q (want fixed or random)", c.ConfidenceJitter)
	}

	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.ArtifactCacheSize < 1 {
		return fmt.Errorf("ARTIFACT_CACHE_SIZE must be >= 1")
	}
	if c.ConflictRetries < 1 {
		return fmt.Errorf("CONFLICT_RETRIES must be >= 1")
	}
	return nil
}

// CORSOriginList returns the configured CORS origins, or nil when CORS is off.
func (c *Config) CORSOriginList() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, o := range parts {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with a prefix, e.g. CONTEXTD_LISTEN_ADDR.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		if prefix == "" {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}
