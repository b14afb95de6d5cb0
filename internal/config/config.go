// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/looproute/looproute/internal/database"
)

// ErrMissingORSKey is returned when ORS_API_KEY is not set.
var ErrMissingORSKey = errors.New("ORS_API_KEY is required")

// Config holds configuration shared by the API server and the worker.
type Config struct {
	Port        string
	Environment string
	RequireTLS  bool

	// Per-user request limits per minute.
	GenerateRequestsPerMinute int
	StandardRequestsPerMinute int

	// Routing
	ORSAPIKey            string
	ORSBaseURL           string
	ORSRequestsPerMinute int
	GoogleMapsAPIKey     string // Optional; directions are disabled without it
	MaxAttempts          int

	// POI search
	OverpassURL string
	RedisAddr   string // Optional; POI results are cached in memory without it
	POICacheTTL time.Duration

	// Database is nil when neither DATABASE_URL nor DB_HOST is set; quota is then kept in memory.
	Database *database.Config

	// Quota
	MonthlyGenerationLimit int

	// Auth
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	// JWTPreviousSigningKeys still verify tokens while a new key rolls out.
	JWTPreviousSigningKeys []string

	// Telemetry
	OTELEnabled     bool
	OTLPEndpoint    string
	OTLPSecure      bool
	OTELSampleRatio float64

	// Worker
	PubSubProjectID    string
	PubSubSubscription string
	PubSubResultsTopic string
	JobTimeout         time.Duration
}

// Load reads configuration from the environment. Values in a .env file in the
// working directory are applied first without overriding variables already set.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:                   getEnvOrDefault("APP_PORT", "8080"),
		Environment:            getEnvOrDefault("APP_ENV", "development"),
		RequireTLS:             os.Getenv("REQUIRE_TLS") == "true",
		ORSAPIKey:              os.Getenv("ORS_API_KEY"),
		ORSBaseURL:             os.Getenv("ORS_BASE_URL"),
		ORSRequestsPerMinute:   getIntOrDefault("ORS_REQUESTS_PER_MINUTE", 40),
		GoogleMapsAPIKey:       os.Getenv("GOOGLE_MAPS_API_KEY"),
		MaxAttempts:            getIntOrDefault("ROUTE_MAX_ATTEMPTS", 5),
		OverpassURL:            os.Getenv("OVERPASS_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		POICacheTTL:            getDurationOrDefault("POI_CACHE_TTL", 24*time.Hour),
		MonthlyGenerationLimit: getIntOrDefault("QUOTA_MONTHLY_LIMIT", 5),
		JWTSigningKey:          os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:              getEnvOrDefault("JWT_ISSUER", "https://api.looproute.app"),
		JWTAudience:            getEnvOrDefault("JWT_AUDIENCE", "looproute-api"),
		OTELEnabled:            os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:           getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		PubSubProjectID:        os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription:     getEnvOrDefault("PUBSUB_SUBSCRIPTION", "route-generation-jobs"),
		PubSubResultsTopic:     getEnvOrDefault("PUBSUB_RESULTS_TOPIC", "route-generation-results"),
		JobTimeout:             getDurationOrDefault("JOB_TIMEOUT", 60*time.Second),
	}
	cfg.OTLPSecure = os.Getenv("OTEL_EXPORTER_OTLP_SECURE") == "true"
	cfg.OTELSampleRatio = getFloatOrDefault("OTEL_TRACES_SAMPLE_RATIO", 1)
	cfg.JWTPreviousSigningKeys = getListOrDefault("JWT_PREVIOUS_SIGNING_KEYS", nil)
	cfg.GenerateRequestsPerMinute = getIntOrDefault("RATE_LIMIT_GENERATE_PER_MINUTE", 10)
	cfg.StandardRequestsPerMinute = getIntOrDefault("RATE_LIMIT_STANDARD_PER_MINUTE", 100)

	if database.Configured() {
		db := database.ConfigFromEnv()
		cfg.Database = &db
	}

	if cfg.ORSAPIKey == "" {
		return nil, ErrMissingORSKey
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// loadDotEnv applies variables from path that are not already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for key, value := range values {
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

// getListOrDefault splits a comma-separated variable, dropping empty entries.
func getListOrDefault(key string, defaultValue []string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
