package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Database     DatabaseConfig
	API          APIConfig
	Board        BoardConfig
	Worker       WorkerConfig
	Queue        QueueConfig
	Notification NotificationConfig
	Retry        RetryConfig
	Logging      LoggingConfig
	Metrics      MetricsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// APIConfig holds Lead Store API server settings
type APIConfig struct {
	Port string
	Host string
}

// BoardConfig holds the board service settings and its Lead Store client
type BoardConfig struct {
	Port         string
	Host         string
	StoreURL     string
	StoreToken   string
	StoreTimeout time.Duration
	RequestRate  float64 // outgoing Lead Store requests per second
	RequestBurst int
	TimeZone     string
}

// WorkerConfig holds worker settings
type WorkerConfig struct {
	PollInterval time.Duration
	Concurrency  int
	MetricsAddr  string // listen address for /health and /metrics
}

// QueueConfig holds queue settings
type QueueConfig struct {
	Type     string // "redis" or "database"
	RedisURL string
}

// NotificationConfig holds the status-change webhook settings
type NotificationConfig struct {
	Enabled    bool
	WebhookURL string
	Token      string
	Timeout    time.Duration
}

// RetryConfig holds retry logic settings
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string
}

// MetricsConfig holds prometheus settings
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "leadboard"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		API: APIConfig{
			Port: getEnv("API_PORT", "8080"),
			Host: getEnv("API_HOST", "0.0.0.0"),
		},
		Board: BoardConfig{
			Port:         getEnv("BOARD_PORT", "8081"),
			Host:         getEnv("BOARD_HOST", "0.0.0.0"),
			StoreURL:     getEnv("LEAD_STORE_URL", "http://localhost:8080"),
			StoreToken:   getEnv("LEAD_STORE_TOKEN", ""),
			StoreTimeout: parseDuration(getEnv("LEAD_STORE_TIMEOUT", "10s"), 10*time.Second),
			RequestRate:  parseFloat(getEnv("LEAD_STORE_RATE", "20"), 20),
			RequestBurst: parseInt(getEnv("LEAD_STORE_BURST", "5"), 5),
			TimeZone:     getEnv("BOARD_TIMEZONE", "Australia/Melbourne"),
		},
		Worker: WorkerConfig{
			PollInterval: parseDuration(getEnv("WORKER_POLL_INTERVAL", "5s"), 5*time.Second),
			Concurrency:  parseInt(getEnv("WORKER_CONCURRENCY", "5"), 5),
			MetricsAddr:  getEnv("WORKER_METRICS_ADDR", ":9091"),
		},
		Queue: QueueConfig{
			Type:     getEnv("QUEUE_TYPE", "database"),
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Notification: NotificationConfig{
			Enabled:    parseBool(getEnv("NOTIFY_ENABLED", "false")),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			Token:      getEnv("NOTIFY_WEBHOOK_TOKEN", ""),
			Timeout:    parseDuration(getEnv("NOTIFY_TIMEOUT", "30s"), 30*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: parseInt(getEnv("MAX_RETRY_ATTEMPTS", "5"), 5),
			BackoffBase: parseDuration(getEnv("RETRY_BACKOFF_BASE", "30s"), 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled:   parseBool(getEnv("METRICS_ENABLED", "true")),
			Namespace: getEnv("METRICS_NAMESPACE", "leadboard"),
		},
	}

	if err := cfg.validateCommon(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateCommon checks settings shared by every binary
func (c *Config) validateCommon() error {
	switch c.Queue.Type {
	case "database", "redis":
	default:
		return fmt.Errorf("QUEUE_TYPE must be 'database' or 'redis', got '%s'", c.Queue.Type)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("MAX_RETRY_ATTEMPTS must be at least 1")
	}
	return nil
}

// ValidateAPI checks the settings required by the Lead Store API
func (c *Config) ValidateAPI() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.Database.Host == "" || c.Database.DBName == "" {
		return fmt.Errorf("DB_HOST and DB_NAME are required")
	}
	return nil
}

// ValidateBoard checks the settings required by the board service
func (c *Config) ValidateBoard() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.Board.StoreURL == "" {
		return fmt.Errorf("LEAD_STORE_URL is required")
	}
	if _, err := url.ParseRequestURI(c.Board.StoreURL); err != nil {
		return fmt.Errorf("LEAD_STORE_URL is not a valid URL: %w", err)
	}
	if c.Board.RequestRate <= 0 {
		return fmt.Errorf("LEAD_STORE_RATE must be positive")
	}
	if _, err := c.Board.Location(); err != nil {
		return err
	}
	return nil
}

// ValidateWorker checks the settings required by the notification worker
func (c *Config) ValidateWorker() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.Notification.WebhookURL == "" {
		return fmt.Errorf("NOTIFY_WEBHOOK_URL is required")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	return nil
}

// Location resolves the board time zone used for date range filters
func (b BoardConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("BOARD_TIMEZONE '%s' is not a valid IANA zone: %w", b.TimeZone, err)
	}
	return loc, nil
}

// DSN builds the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func parseInt(value string, defaultValue int) int {
	var result int
	_, err := fmt.Sscanf(value, "%d", &result)
	if err != nil {
		return defaultValue
	}
	return result
}

func parseFloat(value string, defaultValue float64) float64 {
	var result float64
	_, err := fmt.Sscanf(value, "%g", &result)
	if err != nil {
		return defaultValue
	}
	return result
}

func parseBool(value string) bool {
	return value == "true" || value == "1" || value == "yes"
}
