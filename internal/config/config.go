package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Search   SearchConfig
	Jobs     JobConfig
	Cache    CacheConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// SearchConfig holds search index connection and query settings
type SearchConfig struct {
	Addresses   []string
	Username    string
	Password    string
	IndexPrefix string
	// Refresh is passed to single-document writes: "false", "true" or "wait_for".
	Refresh         string
	SyncTimeout     time.Duration
	BulkWorkers     int
	BulkFlushBytes  int
	DefaultPageSize int
	MaxPageSize     int
	// MaxResultWindow mirrors the index's max_result_window: from+size of a
	// page request may not exceed it.
	MaxResultWindow int
}

// JobConfig holds background job processor settings
type JobConfig struct {
	PollInterval time.Duration
	MaxWorkers   int
}

// CacheConfig holds settings for the user display-name cache
type CacheConfig struct {
	UserCacheSize int
	UserCacheTTL  time.Duration
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment wins.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "company_wiki"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
		},
		Search: SearchConfig{
			Addresses:       getListEnv("ES_ADDRESSES", []string{"http://localhost:9200"}),
			Username:        getEnv("ES_USERNAME", ""),
			Password:        getEnv("ES_PASSWORD", ""),
			IndexPrefix:     getEnv("ES_INDEX_PREFIX", "wiki_"),
			Refresh:         getEnv("ES_REFRESH", "false"),
			SyncTimeout:     getDurationEnv("ES_SYNC_TIMEOUT", 5*time.Second),
			BulkWorkers:     getIntEnv("ES_BULK_WORKERS", 2),
			BulkFlushBytes:  getIntEnv("ES_BULK_FLUSH_BYTES", 5*1024*1024),
			DefaultPageSize: getIntEnv("SEARCH_DEFAULT_PAGE_SIZE", 10),
			MaxPageSize:     getIntEnv("SEARCH_MAX_PAGE_SIZE", 100),
			MaxResultWindow: getIntEnv("SEARCH_MAX_RESULT_WINDOW", 10000),
		},
		Jobs: JobConfig{
			PollInterval: getDurationEnv("JOB_POLL_INTERVAL", 2*time.Second),
			MaxWorkers:   getIntEnv("JOB_MAX_WORKERS", 1),
		},
		Cache: CacheConfig{
			UserCacheSize: getIntEnv("USER_CACHE_SIZE", 1024),
			UserCacheTTL:  getDurationEnv("USER_CACHE_TTL", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if len(c.Search.Addresses) == 0 {
		return fmt.Errorf("ES_ADDRESSES is required")
	}
	switch c.Search.Refresh {
	case "false", "true", "wait_for":
	default:
		return fmt.Errorf("ES_REFRESH must be one of false, true, wait_for")
	}
	if c.Search.DefaultPageSize <= 0 || c.Search.MaxPageSize <= 0 {
		return fmt.Errorf("search page sizes must be positive")
	}
	if c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return fmt.Errorf("SEARCH_DEFAULT_PAGE_SIZE exceeds SEARCH_MAX_PAGE_SIZE")
	}
	if c.Search.MaxResultWindow < c.Search.MaxPageSize {
		return fmt.Errorf("SEARCH_MAX_RESULT_WINDOW must be at least SEARCH_MAX_PAGE_SIZE")
	}
	if c.Jobs.MaxWorkers <= 0 {
		return fmt.Errorf("JOB_MAX_WORKERS must be positive")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

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

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
