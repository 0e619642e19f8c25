package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Admission configuration
	MaxSpotsPerUser  int
	MaxSpotsPerEvent int
	AdmissionTimeout time.Duration

	// Rate limiting
	RateLimitWindow time.Duration
	RateLimitMax    int

	// Admin API
	AdminAPIKeyHash string

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Admission
		MaxSpotsPerUser:  getEnvAsInt("MAX_SPOTS_PER_USER", 5),
		MaxSpotsPerEvent: getEnvAsInt("MAX_SPOTS_PER_EVENT", 2),
		AdmissionTimeout: getEnvAsDuration("ADMISSION_TIMEOUT", "10s"),

		// Rate limiting
		RateLimitWindow: getEnvAsDuration("RATE_LIMIT_WINDOW", "15m"),
		RateLimitMax:    getEnvAsInt("RATE_LIMIT_MAX", 100),

		// Admin API (bcrypt hash of the admin key; empty disables admin routes)
		AdminAPIKeyHash: getEnv("ADMIN_API_KEY_HASH", ""),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
