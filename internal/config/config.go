package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Session and message buffer
	MaxPerNumber int
	AuthDir      string
	DatabaseURL  string // credentials go to PostgreSQL instead of AuthDir when set
	RedisURL     string
	RepliesFile  string
	StaticDir    string

	// Control surface
	ControlTokenHash string // bcrypt hash guarding the mutating endpoints

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
	TrustedProxies     []string // proxies allowed to set X-Forwarded-For
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "3000"),
		Env:              getEnv("ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		MaxPerNumber:     getEnvInt("MAX_PER_NUMBER", 500),
		AuthDir:          getEnv("AUTH_DIR", "wa_auth"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		RepliesFile:      os.Getenv("REPLIES_FILE"),
		StaticDir:        os.Getenv("STATIC_DIR"),
		ControlTokenHash: os.Getenv("CONTROL_TOKEN_HASH"),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	// Comma-separated IPs or CIDRs
	cfg.RateLimitWhitelist = getEnvList("RATE_LIMIT_WHITELIST")
	cfg.TrustedProxies = getEnvList("TRUSTED_PROXIES")

	// In production, the control endpoints must not be open
	if cfg.Env == "production" && cfg.ControlTokenHash == "" {
		panic("CONTROL_TOKEN_HASH is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns a positive integer from the environment, or defaultValue
// when the variable is unset or invalid.
func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvList(key string) []string {
	var out []string
	for _, entry := range strings.Split(os.Getenv(key), ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
