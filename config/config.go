package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// DatabaseURL selects the state store adapter: postgres:// URL,
	// sqlite file path, or "memory".
	DatabaseURL string

	// DriverStoreURL is the connection driver's own credential store.
	DriverStoreURL string

	// Driver picks the connection driver: "whatsmeow" or "fake" for
	// local dashboard work without a real account.
	Driver string

	CORSAllowOrigins []string

	EnableWebhook  bool
	WebhookTimeout time.Duration

	HeartbeatInterval time.Duration

	RateLimitPerSecond int
	RateLimitBurst     int
	RateLimitWindow    time.Duration
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "2121"),
		DatabaseURL:        getEnv("DATABASE_URL", "gowa-hub.db"),
		DriverStoreURL:     getEnv("DRIVER_DATABASE_URL", "gowa-driver.db"),
		Driver:             getEnv("DRIVER", "whatsmeow"),
		CORSAllowOrigins:   splitTrim(getEnv("CORS_ALLOW_ORIGINS", "*")),
		EnableWebhook:      getEnv("GOWA_ENABLE_WEBHOOK", "true") == "true",
		WebhookTimeout:     time.Duration(getEnvAsInt("WEBHOOK_TIMEOUT_SECONDS", 10)) * time.Second,
		HeartbeatInterval:  time.Duration(getEnvAsInt("HEARTBEAT_MINUTES", 5)) * time.Minute,
		RateLimitPerSecond: getEnvAsInt("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),
		RateLimitWindow:    time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 3)) * time.Minute,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
