package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all gateway configuration loaded from environment variables.
//
// Core settings are not required at load time. When they are missing, every
// Core-bound request fails with a "config" error instead.
type Config struct {
	Port     int    `envconfig:"PAYSYNC_PORT" default:"8080"`
	LogLevel string `envconfig:"PAYSYNC_LOG_LEVEL" default:"info"`
	LogDir   string `envconfig:"PAYSYNC_LOG_DIR" default:"./logs"`

	CoreBaseURL    string `envconfig:"PAYSYNC_CORE_BASE_URL"`
	MerchantID     string `envconfig:"PAYSYNC_MERCHANT_ID"`
	APIKey         string `envconfig:"PAYSYNC_API_KEY"`
	ProviderSecret string `envconfig:"PAYSYNC_PROVIDER_SECRET"`
	CoreRPS        int    `envconfig:"PAYSYNC_CORE_RPS" default:"10"`

	PollIntervalMS    int    `envconfig:"PAYSYNC_POLL_INTERVAL_MS" default:"2500"`
	RetryIntervalMS   int    `envconfig:"PAYSYNC_RETRY_INTERVAL_MS" default:"3000"`
	MaxActiveSessions int    `envconfig:"PAYSYNC_MAX_ACTIVE_SESSIONS" default:"100"`
	RedirectURL       string `envconfig:"PAYSYNC_REDIRECT_URL"`

	AllowedOrigins []string `envconfig:"PAYSYNC_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	RedisAddr     string `envconfig:"PAYSYNC_REDIS_ADDR"`
	RedisPassword string `envconfig:"PAYSYNC_REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"PAYSYNC_REDIS_DB" default:"0"`
}

// Load reads configuration from .env file (if present) then from environment variables.
// Environment variables override .env values.
func Load() (*Config, error) {
	// godotenv does NOT override already-set env vars.
	envFiles := []string{".env"}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				slog.Warn("failed to load .env file", "file", f, "error", err)
			} else {
				slog.Info("loaded .env file", "file", f)
			}
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be 1-65535, got %d", ErrInvalidConfig, c.Port)
	}
	if c.CoreRPS < 1 {
		return fmt.Errorf("%w: PAYSYNC_CORE_RPS must be >= 1, got %d", ErrInvalidConfig, c.CoreRPS)
	}
	if c.PollIntervalMS < 1 || c.RetryIntervalMS < 1 {
		return fmt.Errorf("%w: poll intervals must be positive, got %d/%d ms",
			ErrInvalidConfig, c.PollIntervalMS, c.RetryIntervalMS)
	}
	if c.MaxActiveSessions < 1 {
		return fmt.Errorf("%w: PAYSYNC_MAX_ACTIVE_SESSIONS must be >= 1, got %d", ErrInvalidConfig, c.MaxActiveSessions)
	}
	if c.CoreBaseURL != "" {
		u, err := url.Parse(c.CoreBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: PAYSYNC_CORE_BASE_URL must be an absolute http(s) URL, got %q", ErrInvalidConfig, c.CoreBaseURL)
		}
	}
	return nil
}

// MissingCoreSettings returns the env var names of Core settings that are unset.
// The provider secret is only checked when withProviderSecret is true, since
// only the detection call needs it.
func (c *Config) MissingCoreSettings(withProviderSecret bool) []string {
	var missing []string
	if c.CoreBaseURL == "" {
		missing = append(missing, "PAYSYNC_CORE_BASE_URL")
	}
	if c.MerchantID == "" {
		missing = append(missing, "PAYSYNC_MERCHANT_ID")
	}
	if c.APIKey == "" {
		missing = append(missing, "PAYSYNC_API_KEY")
	}
	if withProviderSecret && c.ProviderSecret == "" {
		missing = append(missing, "PAYSYNC_PROVIDER_SECRET")
	}
	return missing
}

// PollInterval returns the success cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// RetryInterval returns the failure cadence as a duration.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMS) * time.Millisecond
}
