// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Addr     string
	LogLevel string

	// DatabaseURL selects Postgres when set; DatabasePath selects the
	// SQLite file otherwise.
	DatabaseURL  string
	DatabasePath string

	// PolicyBundle is the optional path to a YAML policy bundle. When
	// empty the built-in seed policies are used.
	PolicyBundle string

	RiskReturnThreshold int
	MaxStepsPerSession  int
	StepTimeout         time.Duration
	StepsPerMinute      int
	RateBurst           int

	RedisAddr     string
	RedisPassword string

	OTLPEndpoint     string
	TelemetryEnabled bool

	// Seed drives RMA number suffixes and simulated carrier selection.
	// Zero means derive from the clock.
	Seed int64
}

// Load reads configuration from environment variables, applying defaults
// for anything unset.
func Load() *Config {
	return &Config{
		Addr:                getEnv("ADDR", ":8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DatabasePath:        getEnv("DATABASE_PATH", "returns.db"),
		PolicyBundle:        os.Getenv("POLICY_BUNDLE"),
		RiskReturnThreshold: getEnvInt("RISK_RETURN_THRESHOLD", 3),
		MaxStepsPerSession:  getEnvInt("MAX_STEPS_PER_SESSION", 15),
		StepTimeout:         getEnvDuration("STEP_TIMEOUT", 5*time.Second),
		StepsPerMinute:      getEnvInt("STEPS_PER_MINUTE", 60),
		RateBurst:           getEnvInt("RATE_BURST", 10),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		OTLPEndpoint:        getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TelemetryEnabled:    os.Getenv("TELEMETRY_ENABLED") == "true",
		Seed:                int64(getEnvInt("SEED", 0)),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
