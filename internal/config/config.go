// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/expiryctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/albapepper/expirywatch/internal/kvstore"
)

// --------------------------------------------------------------------------
// Config struct: populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database (optional unless the postgres state backend or the digest is used)
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Notification state
	StateBackend string // memory, file, postgres
	StateFile    string
	StateScope   string

	// Scheduler
	NotifyHour         int
	NotifyLocation     *time.Location
	NotifyPollInterval time.Duration
	NotifyAlignToHour  bool
	NotifyPermitted    bool
	AppURL             string

	// Channels
	PushURL           string
	PushToken         string
	PushRatePerMinute int
	DirectDisplayFor  time.Duration
	DirectEnabled     bool

	// Digest
	DigestEnabled  bool
	DigestHour     int
	DigestLocation *time.Location
	MailFrom       string
	MailTo         string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPTimeout    time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Cache
	CacheEnabled bool
	CacheTTL     time.Duration

	// Maintenance (database only)
	CatchUpInterval   time.Duration
	CleanupInterval   time.Duration
	ConsumedRetention time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	notifyLoc, err := envLocation("NOTIFY_TIMEZONE", time.Local)
	if err != nil {
		return nil, err
	}
	digestLoc, err := envLocation("DIGEST_TIMEZONE", notifyLoc)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:    envOr("DATABASE_URL", ""),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 5),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		StateBackend: strings.ToLower(envOr("STATE_BACKEND", kvstore.BackendFile)),
		StateFile:    envOr("STATE_FILE", "data/notification-state.json"),
		StateScope:   envOr("STATE_SCOPE", "default"),

		NotifyHour:         envInt("NOTIFY_HOUR", 6),
		NotifyLocation:     notifyLoc,
		NotifyPollInterval: envDuration("NOTIFY_POLL_INTERVAL", time.Hour),
		NotifyAlignToHour:  envBool("NOTIFY_ALIGN_HOUR", true),
		NotifyPermitted:    envBool("NOTIFY_PERMITTED", true),
		AppURL:             envOr("APP_URL", ""),

		PushURL:           envOr("PUSH_URL", ""),
		PushToken:         envOr("PUSH_TOKEN", ""),
		PushRatePerMinute: envInt("PUSH_RATE_PER_MINUTE", 6),
		DirectDisplayFor:  envDuration("DIRECT_DISPLAY", 10*time.Second),
		DirectEnabled:     envBool("DIRECT_ENABLED", true),

		DigestEnabled:  envBool("DIGEST_ENABLED", false),
		DigestHour:     envInt("DIGEST_HOUR", 7),
		DigestLocation: digestLoc,
		MailFrom:       envOr("MAIL_FROM", "expirywatch@localhost"),
		MailTo:         envOr("MAIL_TO", ""),
		SMTPHost:       envOr("SMTP_HOST", ""),
		SMTPPort:       envInt("SMTP_PORT", 587),
		SMTPUsername:   envOr("SMTP_USERNAME", ""),
		SMTPPassword:   envOr("SMTP_PASSWORD", ""),
		SMTPTimeout:    envDuration("SMTP_TIMEOUT", 30*time.Second),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		CacheEnabled: envBool("CACHE_ENABLED", true),
		CacheTTL:     envDuration("CACHE_TTL", 5*time.Minute),

		CatchUpInterval:   envDuration("CATCHUP_INTERVAL", 15*time.Minute),
		CleanupInterval:   envDuration("CLEANUP_INTERVAL", 6*time.Hour),
		ConsumedRetention: time.Duration(envInt("CONSUMED_RETENTION_DAYS", 30)) * 24 * time.Hour,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.NotifyHour < 0 || c.NotifyHour > 23 {
		return fmt.Errorf("NOTIFY_HOUR must be 0-23, got %d", c.NotifyHour)
	}
	if c.DigestHour < 0 || c.DigestHour > 23 {
		return fmt.Errorf("DIGEST_HOUR must be 0-23, got %d", c.DigestHour)
	}
	switch c.StateBackend {
	case kvstore.BackendMemory, kvstore.BackendFile:
	case kvstore.BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when STATE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STATE_BACKEND must be memory, file or postgres, got %q", c.StateBackend)
	}
	if c.DigestEnabled {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when DIGEST_ENABLED=true")
		}
		if c.MailTo == "" || c.SMTPHost == "" {
			return fmt.Errorf("MAIL_TO and SMTP_HOST must be set when DIGEST_ENABLED=true")
		}
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasDatabase reports whether a database is configured.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("90s", "1h") or bare seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envLocation(key string, fallback *time.Location) (*time.Location, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return loc, nil
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
