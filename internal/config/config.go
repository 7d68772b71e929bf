// Package config handles loading application configuration from environment variables.
// All settings have sensible defaults for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application settings loaded from environment variables.
type Config struct {
	Port         string
	DatabasePath string

	// Broker connection for the bridge's own session.
	BrokerURL    string
	MQTTUsername string
	MQTTPassword string
	RigID        string
	KeepAlive    time.Duration
	ReconnectMax time.Duration

	// Short-lived credential minting for browser clients.
	TokenSecret string
	TokenTTL    time.Duration

	// Input pipeline tunables. The dedup constants are deliberately
	// configurable: the right values depend on the hardware's observed
	// retransmission behavior, not on anything knowable at compile time.
	DedupeWindow     time.Duration
	DedupeTTL        time.Duration
	DispatchCacheTTL time.Duration
	SweepInterval    time.Duration

	// Bounded wait before an outbound rig command gives up on the
	// connection.
	CommandWait time.Duration

	RateLimitPerMinute int
	CORSAllowedOrigins []string
	TrustedProxies     []string
	SentryDSN          string
	SentryEnvironment  string
}

// Load reads configuration from environment variables, using defaults where not set.
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "6969"),
		DatabasePath: getEnv("DATABASE_PATH", "./rigbridge.db"),

		BrokerURL:    getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),
		RigID:        getEnv("RIG_ID", "rig-ff-001"),
		KeepAlive:    getDurationEnv("MQTT_KEEPALIVE", 30*time.Second),
		ReconnectMax: getDurationEnv("MQTT_RECONNECT_MAX", 8*time.Second),

		TokenSecret: getEnv("MQTT_TOKEN_SECRET", "change-me-in-production"), // #nosec G101 -- intentional dev default
		TokenTTL:    getDurationEnv("MQTT_TOKEN_TTL", time.Hour),

		DedupeWindow:     getDurationEnv("DEDUPE_WINDOW", 80*time.Millisecond),
		DedupeTTL:        getDurationEnv("DEDUPE_TTL", 10*time.Second),
		DispatchCacheTTL: getDurationEnv("DISPATCH_CACHE_TTL", 5*time.Second),
		SweepInterval:    getDurationEnv("DEDUPE_SWEEP_INTERVAL", 2*time.Second),

		CommandWait: getDurationEnv("RIG_COMMAND_WAIT", 2500*time.Millisecond),

		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		TrustedProxies:     getStringSliceEnv("TRUSTED_PROXIES"),
		SentryDSN:          getEnv("SENTRY_DSN", ""),
		SentryEnvironment:  getEnv("SENTRY_ENVIRONMENT", "production"),
	}
}

func getStringSliceEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var result []string
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
