package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/clinsight/clinical-dashboard/pkg/secrets"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Typesense TypesenseConfig
	Keywell   KeywellConfig
	Canvas    CanvasConfig
	XPC       XPCConfig
	Loader    LoaderConfig
	OTEL      OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	URL    string
	APIKey string
}

// KeywellConfig holds configuration for the model-serving endpoint used for
// clinical consultations
type KeywellConfig struct {
	Endpoint       string
	Token          string
	ModelID        string
	ModelVersion   string
	RateLimitRPM   int
	RateLimitBurst int
}

// CanvasConfig holds Canvas EHR OAuth and FHIR API configuration
type CanvasConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// XPCConfig holds configuration for the external chart review API
type XPCConfig struct {
	BaseURL string
	APIKey  string
}

// LoaderConfig holds progressive patient loader configuration
type LoaderConfig struct {
	EnrichmentChunkSize int
	StalenessWindow     time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables. When VAULT_ENABLED is
// set, secrets are fetched from Vault and applied to the environment first so
// the usual env lookups pick them up.
func Load() (*Config, error) {
	vaultCfg := secrets.LoadVaultConfigFromEnv("")
	if _, err := secrets.ApplyVaultSecrets(context.Background(), vaultCfg); err != nil {
		return nil, fmt.Errorf("loading vault secrets: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "clinical_dashboard"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Typesense: TypesenseConfig{
			URL:    getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey: getEnv("TYPESENSE_API_KEY", "xyz"),
		},
		Keywell: KeywellConfig{
			Endpoint:       getEnv("KEYWELL_ENDPOINT", ""),
			Token:          getEnv("KEYWELL_PAT", ""),
			ModelID:        getEnv("KEYWELL_MODEL_ID", ""),
			ModelVersion:   getEnv("KEYWELL_MODEL_VERSION", "MedGemma-4B-IT-v2"),
			RateLimitRPM:   getEnvAsInt("KEYWELL_RATE_LIMIT_RPM", 60),
			RateLimitBurst: getEnvAsInt("KEYWELL_RATE_LIMIT_BURST", 5),
		},
		Canvas: CanvasConfig{
			BaseURL:      getEnv("CANVAS_BASE_URL", "https://secure.canvasmedical.com"),
			ClientID:     getEnv("CANVAS_ID", ""),
			ClientSecret: getEnv("CANVAS_SECRET", ""),
		},
		XPC: XPCConfig{
			BaseURL: getEnv("XPC_BASE_URL", "https://hackathon-api.xprimarycare.com"),
			APIKey:  getEnv("XPC_API", ""),
		},
		Loader: LoaderConfig{
			EnrichmentChunkSize: getEnvAsInt("LOADER_ENRICHMENT_CHUNK_SIZE", 3),
			StalenessWindow:     getEnvAsDuration("LOADER_STALENESS_WINDOW", 24*time.Hour),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "clinical-dashboard"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}, nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
	}
	return defaultValue
}
