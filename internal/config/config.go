// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/michalmalinowski87/photo-sub008/internal/database"
)

// ErrMissingRequired is returned when a required variable is unset.
var ErrMissingRequired = errors.New("missing required configuration")

// Config holds the configuration of both binaries.
type Config struct {
	Port        string
	Environment string

	OTELEnabled     bool
	OTLPEndpoint    string
	OTELSampleRatio float64

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	// UseMemoryStores swaps Postgres and Redis for in-memory stores (local development only).
	UseMemoryStores bool
	Database        database.Config

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PubSubProjectID   string
	ExecutorTopic     string
	DeadLetterTopic   string
	GracePeriod       time.Duration
	UndoBaseURL       string
	SideEffectTimeout time.Duration

	ResendAPIKey string
	EmailFrom    string

	DispatchSchedule  string
	DispatchBatchSize int
}

// Load reads an optional .env file, then the environment.
// Variables already set in the environment take precedence over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Config{
		Port:        getEnvOrDefault("APP_PORT", "8080"),
		Environment: getEnvOrDefault("APP_ENV", "development"),

		OTELEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTLPEndpoint:    getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1),

		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:     getEnvOrDefault("JWT_ISSUER", "gallery-api"),
		JWTAudience:   getEnvOrDefault("JWT_AUDIENCE", "gallery-dashboard"),

		UseMemoryStores: getEnvBool("USE_MEMORY_STORES", false),
		Database:        database.ConfigFromEnv(),

		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		PubSubProjectID:   os.Getenv("PUBSUB_PROJECT_ID"),
		ExecutorTopic:     os.Getenv("DELETION_EXECUTOR_TOPIC"),
		DeadLetterTopic:   os.Getenv("DELETION_DEAD_LETTER_TOPIC"),
		GracePeriod:       getEnvDuration("DELETION_GRACE_PERIOD", 72*time.Hour),
		UndoBaseURL:       os.Getenv("UNDO_BASE_URL"),
		SideEffectTimeout: getEnvDuration("SIDE_EFFECT_TIMEOUT", 5*time.Second),

		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		EmailFrom:    getEnvOrDefault("EMAIL_FROM", "Galeria <no-reply@example.com>"),

		DispatchSchedule:  getEnvOrDefault("DISPATCH_SCHEDULE", "@every 1m"),
		DispatchBatchSize: getEnvInt("DISPATCH_BATCH_SIZE", 100),
	}

	return cfg, nil
}

// ValidateAPI checks the variables the API cannot start without.
func (c Config) ValidateAPI() error {
	return require(map[string]string{
		"JWT_SIGNING_KEY":         c.JWTSigningKey,
		"UNDO_BASE_URL":           c.UndoBaseURL,
		"DELETION_EXECUTOR_TOPIC": c.ExecutorTopic,
	})
}

// ValidateWorker checks the variables the worker cannot start without.
func (c Config) ValidateWorker() error {
	return require(map[string]string{
		"PUBSUB_PROJECT_ID": c.PubSubProjectID,
	})
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func require(values map[string]string) error {
	var missing []string
	for key, v := range values {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}
