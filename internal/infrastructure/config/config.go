// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml), with ${ENV_VAR} expansion
//  2. Environment variables (fallback)
//
// A .env file in the working directory is applied first, if present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Feed      FeedConfig      `yaml:"feed"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig selects and configures the ledger backend.
type StorageConfig struct {
	// Driver is one of "memory", "sqlite", "postgres".
	Driver string `yaml:"driver"`

	// DatabasePath is the sqlite file path.
	DatabasePath string `yaml:"database_path"`

	// DatabaseURL is the postgres connection string.
	DatabaseURL string `yaml:"database_url"`

	// CacheEnabled wraps the backend in a read-through cache.
	CacheEnabled bool `yaml:"cache_enabled"`
}

// FeedConfig holds bank-feed endpoint settings and account bindings.
type FeedConfig struct {
	BaseURL  string           `yaml:"base_url"`
	Token    string           `yaml:"token"`
	Accounts []AccountBinding `yaml:"accounts"`
}

// AccountBinding ties a ledger account to a feed-side account reference.
type AccountBinding struct {
	UserID         int64  `yaml:"user_id"`
	AccountID      int64  `yaml:"account_id"`
	FeedAccountRef string `yaml:"feed_account_ref"`
}

// SchedulerConfig holds the import loop settings.
type SchedulerConfig struct {
	Interval            time.Duration `yaml:"interval"`
	MaxParallelAccounts int           `yaml:"max_parallel_accounts"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${FEED_TOKEN})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("PORT", 8080),
		},
		Storage: StorageConfig{
			Driver:       getEnv("STORAGE_DRIVER", "memory"),
			DatabasePath: getEnv("SQLITE_PATH", "envelopes.db"),
			DatabaseURL:  os.Getenv("DATABASE_URL"),
		},
		Feed: FeedConfig{
			BaseURL: os.Getenv("FEED_BASE_URL"),
			Token:   os.Getenv("FEED_TOKEN"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries the config file first and falls back to environment
// variables. A .env file, if present, is loaded before either.
func LoadOrEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv(), nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = 15 * time.Minute
	}
	if c.Scheduler.MaxParallelAccounts == 0 {
		c.Scheduler.MaxParallelAccounts = 4
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
