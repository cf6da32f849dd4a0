package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Database    DatabaseConfig
	Typesense   TypesenseConfig
	Redis       RedisConfig
	Transfer    TransferConfig
	OTEL        OTELConfig
}

// DatabaseConfig holds registry database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	URL    string
	APIKey string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TransferConfig holds transfer run configuration
type TransferConfig struct {
	SourceTable        string
	Collection         string
	RowLimit           int
	WriteRetryAttempts int
	EventsEnabled      bool
	EventsChannel      string
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// credentialKeys is the fixed key set of the flat credentials file.
var credentialKeys = []string{"host", "user", "password", "dbname", "port"}

// Load loads configuration from environment variables. When
// DB_CREDENTIALS_FILE is set, database credentials are read from that file
// (flat key=value pairs: host, user, password, dbname, port) and take
// precedence over the DB_* environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "clinical_trials"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Typesense: TypesenseConfig{
			URL:    getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey: getEnv("TYPESENSE_API_KEY", "xyz"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Transfer: TransferConfig{
			SourceTable:        getEnv("TRANSFER_SOURCE_TABLE", "eligibilities"),
			Collection:         getEnv("TRANSFER_COLLECTION", "trial_eligibility"),
			RowLimit:           getEnvAsInt("TRANSFER_ROW_LIMIT", 0),
			WriteRetryAttempts: getEnvAsInt("TRANSFER_WRITE_RETRY_ATTEMPTS", 3),
			EventsEnabled:      getEnvAsBool("TRANSFER_EVENTS_ENABLED", false),
			EventsChannel:      getEnv("TRANSFER_EVENTS_CHANNEL", "transfer.runs"),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "eligibility-etl"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if path := os.Getenv("DB_CREDENTIALS_FILE"); path != "" {
		if err := cfg.Database.applyCredentialsFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// applyCredentialsFile overrides database settings with values from a flat
// key=value credentials file.
func (c *DatabaseConfig) applyCredentialsFile(path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read credentials file %s: %w", path, err)
	}

	for _, key := range credentialKeys {
		value, ok := values[key]
		if !ok || value == "" {
			continue
		}
		switch key {
		case "host":
			c.Host = value
		case "user":
			c.User = value
		case "password":
			c.Password = value
		case "dbname":
			c.Database = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid port %q in credentials file %s: %w", value, path, err)
			}
			c.Port = port
		}
	}

	return nil
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
