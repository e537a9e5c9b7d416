package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds runtime configuration, loaded from environment variables.
type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	Stream StreamConfig
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Port int
}

// RedisConfig represents the broker (Redis pub/sub) configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StreamConfig represents live premium stream configuration.
// MockPublisher enables the synthetic premium tick generator for local
// development.
type StreamConfig struct {
	DefaultChannel string
	Heartbeat      time.Duration
	MockPublisher  bool
}

// Load reads configuration from the environment, falling back to
// defaults suitable for local development.
func Load() Config {
	return Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Stream: StreamConfig{
			DefaultChannel: getEnv("PREMIUM_CHANNEL", "premium:ticks"),
			Heartbeat:      getEnvAsDuration("STREAM_HEARTBEAT", 20*time.Second),
			MockPublisher:  getEnvAsBool("MOCK_PUBLISHER", false),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
