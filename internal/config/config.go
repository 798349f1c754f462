// Package config defines service configuration and its loading.
//
// Values are layered low to high: defaults from New, an optional YAML file
// named by BLEED_CONFIG, then BLEED_* environment variables. A .env file in
// the working directory is read into the environment first.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory audit job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of audit workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the idempotency key cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxAuditDays and MaxEventsPerAudit bound a single audit request.
	MaxAuditDays      int `koanf:"max_audit_days"`
	MaxEventsPerAudit int `koanf:"max_events_per_audit"`

	// RateStrategy is "blended" or "vertical".
	RateStrategy string `koanf:"rate_strategy"`

	// UnknownTierPolicy is "ignore" or "senior".
	UnknownTierPolicy string `koanf:"unknown_tier_policy"`

	// DatabaseURL selects the Postgres store when set; otherwise audits are kept in memory.
	DatabaseURL   string `koanf:"database_url"`
	MigrationsDir string `koanf:"migrations_dir"`

	// RedisAddr enables the shared rate limiter when set.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// RateLimitPerMinute caps authenticated requests per user. Zero disables limiting.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`

	JWTSecret        string `koanf:"jwt_secret"`
	TokenTTLMinutes  int    `koanf:"token_ttl_minutes"`
	EncryptionSecret string `koanf:"encryption_secret"`

	GoogleClientID     string `koanf:"google_client_id"`
	GoogleClientSecret string `koanf:"google_client_secret"`
	GoogleRedirectURL  string `koanf:"google_redirect_url"`
	GoogleAPIBaseURL   string `koanf:"google_api_base_url"`

	// RefreshSchedule is a cron expression for re-auditing connected
	// calendars. Empty disables the job.
	RefreshSchedule   string `koanf:"refresh_schedule"`
	RefreshWindowDays int    `koanf:"refresh_window_days"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		QueueSize:          1024,
		WorkerCount:        runtime.NumCPU(),
		DedupeSize:         50_000,
		MaxAuditDays:       366,
		MaxEventsPerAudit:  10_000,
		RateStrategy:       "blended",
		UnknownTierPolicy:  "ignore",
		RateLimitPerMinute: 120,
		TokenTTLMinutes:    60,
		RefreshWindowDays:  7,
	}
}

// TokenTTL is the lifetime of issued API tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// RefreshWindow is the trailing period re-audited by the refresh job.
func (c *Config) RefreshWindow() time.Duration {
	return time.Duration(c.RefreshWindowDays) * 24 * time.Hour
}

// GoogleEnabled reports whether OAuth credentials are present.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}
