// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings for the gateway.
type Config struct {
	Port        int
	Environment string
	PublicURL   string

	// Telegram
	BotToken       string
	WebhookEnabled bool

	// Provider
	ProviderAPIKey  string
	ProviderModel   string
	ProviderTimeout time.Duration
	MaxAttempts     int

	// Auth policy
	AllowGuests bool
	JWTSecret   string
	SessionTTL  time.Duration

	// Metering
	DefaultCredits int
	ChargeOnEcho   bool
	HistoryLimit   int

	// Storage
	LedgerBackend string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string

	// HTTP
	CORSAllowedOrigins string
	RateLimitRPS       int
	RateLimitBurst     int
}

// Load reads configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               envInt("PORT", 8080),
		Environment:        envString("ENVIRONMENT", "production"),
		PublicURL:          os.Getenv("PUBLIC_URL"),
		BotToken:           os.Getenv("TELEGRAM_BOT_TOKEN"),
		WebhookEnabled:     envBool("TELEGRAM_WEBHOOK_ENABLED", true),
		ProviderAPIKey:     os.Getenv("GEMINI_API_KEY"),
		ProviderModel:      envString("GEMINI_MODEL", "gemini-2.5-flash-image"),
		ProviderTimeout:    envDuration("PROVIDER_TIMEOUT", 60*time.Second),
		MaxAttempts:        envInt("PROVIDER_MAX_ATTEMPTS", 5),
		AllowGuests:        envBool("ALLOW_GUESTS", true),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		SessionTTL:         envDuration("SESSION_TTL", 24*time.Hour),
		DefaultCredits:     envInt("DEFAULT_CREDITS", 10),
		ChargeOnEcho:       envBool("CHARGE_ON_ECHO", false),
		HistoryLimit:       envInt("HISTORY_LIMIT", 20),
		LedgerBackend:      envString("LEDGER_BACKEND", "memory"),
		RedisAddr:          envString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		CORSAllowedOrigins: os.Getenv("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       envInt("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     envInt("RATE_LIMIT_BURST", 10),
	}

	if cfg.ProviderAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if cfg.BotToken == "" && !cfg.AllowGuests {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required when ALLOW_GUESTS=false")
	}
	if cfg.LedgerBackend != "memory" && cfg.LedgerBackend != "redis" {
		return nil, fmt.Errorf("LEDGER_BACKEND must be memory or redis, got %q", cfg.LedgerBackend)
	}
	if cfg.DefaultCredits < 0 {
		return nil, fmt.Errorf("DEFAULT_CREDITS must not be negative")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("PROVIDER_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

// IsDevelopment reports whether the gateway runs in development mode.
// Development mode includes error causes in HTTP responses.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func envString(key, fallback string) string {
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
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
