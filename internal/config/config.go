package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the concert bot.
// Environment variables are automatically parsed from the CONCERTS_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	DBDriver    string `envconfig:"DB_DRIVER" default:"auto"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/concerts.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Metadata extraction
	FetchTimeoutSeconds int `envconfig:"FETCH_TIMEOUT_SECONDS" default:"15"`
	FetchMaxRedirects   int `envconfig:"FETCH_MAX_REDIRECTS" default:"5"`
	FetchRetryWaitMS    int `envconfig:"FETCH_RETRY_WAIT_MS" default:"500"`

	// Conversation state
	PreviewTTLMinutes   int `envconfig:"PREVIEW_TTL_MINUTES" default:"60"`
	DialogueIdleMinutes int `envconfig:"DIALOGUE_IDLE_MINUTES" default:"30"`

	// Admins allowed to quick-add from group chats, comma separated user IDs
	AdminUserIDs string `envconfig:"ADMIN_USER_IDS" default:""`

	// Poll announcements
	EventBuffer     int `envconfig:"EVENT_BUFFER" default:"64"`
	PollMaxAttempts int `envconfig:"POLL_MAX_ATTEMPTS" default:"5"`

	// Health check configuration
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates DBDriver and derives it when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	if c.DBDriver == "" || c.DBDriver == "auto" {
		if c.PostgresDSN != "" {
			c.DBDriver = "postgres"
		} else {
			c.DBDriver = "sqlite"
		}
	}

	allowedDB := map[string]bool{"sqlite": true, "postgres": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("CONCERTS_POSTGRES_DSN is required when DB_DRIVER=postgres")
	}
	if c.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT_SECONDS must be positive")
	}
	if c.FetchMaxRedirects < 0 {
		return fmt.Errorf("FETCH_MAX_REDIRECTS must not be negative")
	}
	if _, err := c.Admins(); err != nil {
		return err
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Environment variables should be prefixed with CONCERTS_
// Example: CONCERTS_DB_DRIVER, CONCERTS_HTTP_PORT
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CONCERTS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Str("sqlite_path", cfg.SQLitePath).
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Int("port", cfg.HTTPPort).
		Int("fetch_timeout_s", cfg.FetchTimeoutSeconds).
		Int("fetch_max_redirects", cfg.FetchMaxRedirects).
		Int("preview_ttl_min", cfg.PreviewTTLMinutes).
		Int("dialogue_idle_min", cfg.DialogueIdleMinutes).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		Environment:               EnvTesting,
		DBDriver:                  "sqlite",
		SQLitePath:                ":memory:",
		HTTPPort:                  8080,
		FetchTimeoutSeconds:       2,
		FetchMaxRedirects:         5,
		FetchRetryWaitMS:          1,
		PreviewTTLMinutes:         60,
		DialogueIdleMinutes:       30,
		EventBuffer:               16,
		PollMaxAttempts:           2,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c *Config) PreviewTTL() time.Duration {
	return time.Duration(c.PreviewTTLMinutes) * time.Minute
}

func (c *Config) DialogueIdle() time.Duration {
	return time.Duration(c.DialogueIdleMinutes) * time.Minute
}

// Admins parses AdminUserIDs into a set.
func (c *Config) Admins() (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, part := range strings.Split(c.AdminUserIDs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_USER_IDS entry %q: %w", part, err)
		}
		out[id] = true
	}
	return out, nil
}
