// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the trade watcher.
type Config struct {
	// Messaging endpoint
	TelegramToken   string
	TelegramChatID  string
	TelegramAPIURL  string
	SendDelay       time.Duration
	SendMaxAttempts int

	// Tracked identities
	Handles      []string
	PollInterval time.Duration

	// Polymarket APIs
	DataAPIURL     string
	GammaAPIURL    string
	CLOBAPIURL     string
	EventURLBase   string
	TradePageLimit int
	HTTPTimeout    time.Duration
	MarketCacheTTL time.Duration

	// State
	StateBackend   string
	StatePath      string
	NamesPath      string
	FlushEachEvent bool

	// Formatting
	WhaleValueUSD float64

	// Live activity nudges
	LiveNudge bool
	LiveWSURL string

	// Metrics
	MetricsPort int

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	cfg := LoadUnvalidated()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadUnvalidated reads .env and the environment so callers can apply
// overrides before validating.
func LoadUnvalidated() *Config {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment without validating it.
func FromEnv() *Config {
	return &Config{
		// Telegram
		TelegramToken:   getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID:  getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramAPIURL:  getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		SendDelay:       time.Duration(getEnvInt("SEND_DELAY_MS", 600)) * time.Millisecond,
		SendMaxAttempts: getEnvInt("TG_MAX_RETRIES", 3),

		// Identities
		Handles:      splitList(getEnv("HANDLES", "")),
		PollInterval: time.Duration(getEnvInt("POLL_SECONDS", 20)) * time.Second,

		// Polymarket
		DataAPIURL:     getEnv("DATA_API_URL", "https://data-api.polymarket.com"),
		GammaAPIURL:    getEnv("GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		CLOBAPIURL:     getEnv("CLOB_API_URL", "https://clob.polymarket.com"),
		EventURLBase:   getEnv("EVENT_URL_BASE", "https://polymarket.com/event"),
		TradePageLimit: getEnvInt("TRADE_PAGE_LIMIT", 50),
		HTTPTimeout:    time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 20)) * time.Second,
		MarketCacheTTL: time.Duration(getEnvInt("MARKET_CACHE_MINUTES", 30)) * time.Minute,

		// State
		StateBackend:   strings.ToLower(getEnv("STATE_BACKEND", "json")),
		StatePath:      getEnv("STATE_PATH", "state.json"),
		NamesPath:      getEnv("NAMES_PATH", "names.json"),
		FlushEachEvent: getEnvBool("FLUSH_EACH_EVENT", false),

		// Formatting
		WhaleValueUSD: getEnvFloat("WHALE_VALUE_USD", 10000),

		// Live
		LiveNudge: getEnvBool("LIVE_NUDGE", false),
		LiveWSURL: getEnv("LIVE_WS_URL", "wss://ws-live-data.polymarket.com"),

		// Metrics
		MetricsPort: getEnvInt("METRICS_PORT", 0),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if err := c.ValidateMessaging(); err != nil {
		return err
	}

	if len(c.Handles) == 0 {
		return fmt.Errorf("HANDLES is required")
	}

	if c.PollInterval < time.Second {
		return fmt.Errorf("POLL_SECONDS must be at least 1")
	}

	if c.TradePageLimit < 1 {
		return fmt.Errorf("TRADE_PAGE_LIMIT must be at least 1")
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive")
	}

	if c.StateBackend != "json" && c.StateBackend != "sqlite" {
		return fmt.Errorf("STATE_BACKEND must be 'json' or 'sqlite', got %q", c.StateBackend)
	}

	if c.StatePath == "" {
		return fmt.Errorf("STATE_PATH is required")
	}

	if c.WhaleValueUSD <= 0 {
		return fmt.Errorf("WHALE_VALUE_USD must be positive")
	}

	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("METRICS_PORT must be between 0 and 65535")
	}

	return nil
}

// ValidateMessaging checks only what is needed to deliver a message.
func (c *Config) ValidateMessaging() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	if c.TelegramChatID == "" {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required")
	}

	if c.SendMaxAttempts < 1 {
		return fmt.Errorf("TG_MAX_RETRIES must be at least 1")
	}

	if c.SendDelay < 0 {
		return fmt.Errorf("SEND_DELAY_MS must not be negative")
	}

	return nil
}

// MaskedTelegramToken returns the bot token with most characters hidden for logging.
func (c *Config) MaskedTelegramToken() string {
	return maskSecret(c.TelegramToken)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
