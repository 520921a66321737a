package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Database Configuration
	Database DatabaseConfig

	// Log configuration
	LogLevel string

	// Ingestion Configuration
	Ingestion IngestionConfig

	// Alerting Configuration
	Alerting AlertingConfig

	// Server Configuration
	Server ServerConfig

	// Performance Configuration
	Performance PerformanceConfig
}

// DatabaseConfig contains database-related settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLife     time.Duration
	RetentionDays   int           // Number of days to retain events (0 = unlimited)
	CleanupInterval time.Duration // How often to check for cleanup (default: 1 hour)
	CleanupTime     string        // Time of day to run cleanup (24-hour format, e.g., "02:00")
	VacuumEnabled   bool          // Run VACUUM after cleanup to reclaim space
}

// IngestionConfig contains session log ingestion settings
type IngestionConfig struct {
	WatchDirs          []string
	WatchLogPath       string
	PollInterval       time.Duration
	BatchMaxSize       int
	BatchHoldTime      time.Duration
	DedupRetention     time.Duration
	DedupPruneInterval time.Duration
}

// AlertingConfig contains rule evaluation and delivery settings
type AlertingConfig struct {
	EvalInterval     time.Duration
	DispatchInterval time.Duration
	DispatchPageSize int
	DeliveryTimeout  time.Duration
	BackoffBase      time.Duration
	BackoffCap       time.Duration
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Host       string
	Port       int
	Production bool
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	RealtimeMetricsInterval time.Duration
}

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Path:            getEnv("DB_PATH", "clawwatch.db"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 3),
			ConnMaxLife:     getEnvAsDuration("DB_CONN_MAX_LIFE", time.Hour),
			RetentionDays:   getEnvAsInt("DB_RETENTION_DAYS", 90),
			CleanupInterval: getEnvAsDuration("DB_CLEANUP_INTERVAL", 1*time.Hour),
			CleanupTime:     getEnv("DB_CLEANUP_TIME", "02:00"),
			VacuumEnabled:   getEnvAsBool("DB_VACUUM_ENABLED", true),
		},
		Ingestion: IngestionConfig{
			WatchDirs:          getEnvAsList("WATCH_DIRS", []string{"sessions"}),
			WatchLogPath:       getEnv("WATCH_LOG_PATH", ""),
			PollInterval:       getEnvAsDuration("POLL_INTERVAL", 1*time.Second),
			BatchMaxSize:       getEnvAsInt("BATCH_MAX_SIZE", 500),
			BatchHoldTime:      getEnvAsDuration("BATCH_HOLD_TIME", 2*time.Second),
			DedupRetention:     getEnvAsDuration("DEDUP_RETENTION", 7*24*time.Hour),
			DedupPruneInterval: getEnvAsDuration("DEDUP_PRUNE_INTERVAL", 1*time.Hour),
		},
		Alerting: AlertingConfig{
			EvalInterval:     getEnvAsDuration("EVAL_INTERVAL", 30*time.Second),
			DispatchInterval: getEnvAsDuration("DISPATCH_INTERVAL", 10*time.Second),
			DispatchPageSize: getEnvAsInt("DISPATCH_PAGE_SIZE", 50),
			DeliveryTimeout:  getEnvAsDuration("DELIVERY_TIMEOUT", 10*time.Second),
			BackoffBase:      getEnvAsDuration("BACKOFF_BASE", 1*time.Minute),
			BackoffCap:       getEnvAsDuration("BACKOFF_CAP", 30*time.Minute),
		},
		Server: ServerConfig{
			Host:       getEnv("SERVER_HOST", "0.0.0.0"),
			Port:       getEnvAsInt("SERVER_PORT", 8080),
			Production: getEnvAsBool("SERVER_PRODUCTION", false),
		},
		Performance: PerformanceConfig{
			RealtimeMetricsInterval: getEnvAsDuration("METRICS_INTERVAL", 5*time.Second),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Helper functions to read environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := []string{}
	for _, p := range strings.Split(valueStr, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return defaultValue
	}
	return parts
}
