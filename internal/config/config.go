package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Storage. DatabaseURL wins over ScyllaHosts, which wins over the SQLite file.
	SQLitePath     string
	DatabaseURL    string
	ScyllaHosts    []string
	ScyllaKeyspace string

	// Fanout and journal
	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations

	// AdminSecret signs tokens for the raw graph endpoint.
	AdminSecret string
}

// Load reads relay configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8765"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SQLitePath:         os.Getenv("SQLITE_PATH"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		ScyllaHosts:        splitList(os.Getenv("SCYLLA_HOSTS")),
		ScyllaKeyspace:     getEnv("SCYLLA_KEYSPACE", "decentchat"),
		RedisURL:           os.Getenv("REDIS_URL"),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "decentchat.graph"),
		RateLimitWhitelist: splitList(os.Getenv("RATE_LIMIT_WHITELIST")),
		AutoBlockEnabled:   getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
		AdminSecret:        os.Getenv("ADMIN_SECRET"),
	}

	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(getEnv("DATA_DIR", "data"), "relay.db")
	}

	if cfg.Env == "production" && cfg.AdminSecret == "" {
		panic("ADMIN_SECRET is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ClientConfig holds configuration for the terminal client.
type ClientConfig struct {
	RelayURL  string
	ConfigDir string

	PinataAPIKey    string
	PinataSecretKey string
	PinataJWT       string
	PinataGateway   string
}

// LoadClient reads client configuration from environment variables.
func LoadClient() *ClientConfig {
	_ = godotenv.Load()

	cfg := &ClientConfig{
		RelayURL:        getEnv("DECENTCHAT_RELAY", "ws://localhost:8765/gun"),
		ConfigDir:       os.Getenv("DECENTCHAT_CONFIG"),
		PinataAPIKey:    os.Getenv("PINATA_API_KEY"),
		PinataSecretKey: os.Getenv("PINATA_SECRET_API_KEY"),
		PinataJWT:       os.Getenv("PINATA_JWT"),
		PinataGateway:   getEnv("PINATA_GATEWAY", "https://gateway.pinata.cloud"),
	}

	if cfg.ConfigDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.ConfigDir = filepath.Join(home, ".decentchat")
		} else {
			cfg.ConfigDir = ".decentchat"
		}
	}

	return cfg
}

// HasPinata reports whether any pinning credentials are set.
func (c *ClientConfig) HasPinata() bool {
	return c.PinataJWT != "" || (c.PinataAPIKey != "" && c.PinataSecretKey != "")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
