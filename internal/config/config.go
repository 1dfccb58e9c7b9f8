// Package config centralises configuration parsing for the measurement service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidAPIKey reports a missing or malformed provider API key.
var ErrInvalidAPIKey = errors.New("invalid provider api key")

// minAPIKeyLength is the shortest key accepted as a signing secret.
const minAPIKeyLength = 16

// Provider holds the six values that identify the hosted backend. APIKey also
// signs session tokens.
type Provider struct {
	APIKey            string
	AuthDomain        string
	ProjectID         string
	StorageBucket     string
	MessagingSenderID string
	AppID             string
}

// ProviderVars lists the provider environment variables in display order.
var ProviderVars = []string{
	"MEDIDAS_API_KEY",
	"MEDIDAS_AUTH_DOMAIN",
	"MEDIDAS_PROJECT_ID",
	"MEDIDAS_STORAGE_BUCKET",
	"MEDIDAS_MESSAGING_SENDER_ID",
	"MEDIDAS_APP_ID",
}

// Validate checks the API key. The remaining values are informational.
func (p Provider) Validate() error {
	key := strings.TrimSpace(p.APIKey)
	if key == "" {
		return fmt.Errorf("%w: MEDIDAS_API_KEY is not set", ErrInvalidAPIKey)
	}
	if len(key) < minAPIKeyLength {
		return fmt.Errorf("%w: MEDIDAS_API_KEY must be at least %d characters", ErrInvalidAPIKey, minAPIKeyLength)
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return fmt.Errorf("%w: MEDIDAS_API_KEY contains whitespace", ErrInvalidAPIKey)
	}
	return nil
}

// Config captures runtime configuration values for the service binaries.
type Config struct {
	HTTPAddress            string
	MetricsAddress         string
	PostgresURL            string
	KafkaBrokers           []string
	SchemaRegistryURL      string
	OutboxEnabled          bool
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	JWTIssuer              string
	TokenTTL               time.Duration
	CacheTTL               time.Duration
	CacheInvalidationURL   string
	CacheInvalidationToken string
	ConsumerGroupID        string
	ConsumerTopics         []string
	DLQPollInterval        time.Duration // Interval between DLQ polling iterations.
	DLQMaxRetries          int           // Retry attempts before quarantine.
	DLQBaseDelay           time.Duration // Base delay for exponential backoff.
	DLQBatchSize           int
	LogLevel               string
	CORSOrigin             string
	Provider               Provider
}

// Load reads environment variables into Config, applying defaults for local dev.
// An empty POSTGRES_URL selects the in-memory stores.
func Load() Config {
	return Config{
		HTTPAddress:            getEnv("HTTP_ADDRESS", ":8080"),
		MetricsAddress:         getEnv("METRICS_ADDRESS", ""),
		PostgresURL:            getEnv("POSTGRES_URL", ""),
		KafkaBrokers:           splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		SchemaRegistryURL:      getEnv("SCHEMA_REGISTRY_URL", "http://schema-registry:8081"),
		OutboxEnabled:          getBoolEnv("OUTBOX_ENABLED", false),
		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 25),
		JWTIssuer:              getEnv("JWT_ISSUER", "medidas.identity"),
		TokenTTL:               getDurationEnv("TOKEN_TTL", 7*24*time.Hour),
		CacheTTL:               getDurationEnv("CACHE_TTL", 30*time.Second),
		CacheInvalidationURL:   getEnv("CACHE_INVALIDATION_URL", ""),
		CacheInvalidationToken: getEnv("CACHE_INVALIDATION_TOKEN", ""),
		ConsumerGroupID:        getEnv("CONSUMER_GROUP_ID", "medidas-event-log"),
		ConsumerTopics:         splitAndTrim(getEnv("CONSUMER_TOPICS", "measurement_events")),
		DLQPollInterval:        getDurationEnv("DLQ_POLL_INTERVAL", 30*time.Second),
		DLQMaxRetries:          getIntEnv("DLQ_MAX_RETRIES", 5),
		DLQBaseDelay:           getDurationEnv("DLQ_BASE_DELAY", time.Minute),
		DLQBatchSize:           getIntEnv("DLQ_BATCH_SIZE", 50),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		CORSOrigin:             getEnv("CORS_ORIGIN", ""),
		Provider: Provider{
			APIKey:            getEnv("MEDIDAS_API_KEY", ""),
			AuthDomain:        getEnv("MEDIDAS_AUTH_DOMAIN", ""),
			ProjectID:         getEnv("MEDIDAS_PROJECT_ID", ""),
			StorageBucket:     getEnv("MEDIDAS_STORAGE_BUCKET", ""),
			MessagingSenderID: getEnv("MEDIDAS_MESSAGING_SENDER_ID", ""),
			AppID:             getEnv("MEDIDAS_APP_ID", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
