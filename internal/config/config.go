// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	APIKey      string   `mapstructure:"apikey"`

	// File paths
	DatabasePath    string `mapstructure:"storagepath"`
	DatabaseName    string `mapstructure:"-"` // Derived from other settings
	ExportDirectory string `mapstructure:"exportdir"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Report recomputation settings
	RecomputeIntervalMinutes int `mapstructure:"recomputeintervalminutes"`

	// Data retention settings
	EventsRetentionDays int `mapstructure:"eventsretentiondays"`

	// Synthetic data settings
	SeedSessions int `mapstructure:"seedsessions"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		// Set defaults
		v.SetDefault("appname", "funnelscope")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("apikey", "")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("exportdir", "exports")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("recomputeintervalminutes", 5)
		v.SetDefault("eventsretentiondays", 90)
		v.SetDefault("seedsessions", 1000)

		// Bind environment variables
		v.BindEnv("appname", "FUNNELSCOPE_APP_NAME")
		v.BindEnv("appport", "FUNNELSCOPE_APP_PORT")
		v.BindEnv("environment", "FUNNELSCOPE_ENV")
		v.BindEnv("loglevel", "FUNNELSCOPE_LOG_LEVEL")
		v.BindEnv("apikey", "FUNNELSCOPE_API_KEY")
		v.BindEnv("storagepath", "FUNNELSCOPE_STORAGE_PATH")
		v.BindEnv("exportdir", "FUNNELSCOPE_EXPORT_DIR")
		v.BindEnv("logsdir", "FUNNELSCOPE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "FUNNELSCOPE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "FUNNELSCOPE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "FUNNELSCOPE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "FUNNELSCOPE_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "FUNNELSCOPE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "FUNNELSCOPE_DB_MAX_IDLE_CONNS")
		v.BindEnv("recomputeintervalminutes", "FUNNELSCOPE_RECOMPUTE_INTERVAL_MINUTES")
		v.BindEnv("eventsretentiondays", "FUNNELSCOPE_EVENTS_RETENTION_DAYS")
		v.BindEnv("seedsessions", "FUNNELSCOPE_SEED_SESSIONS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		// Validate
		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()

		// Ingestion must not run unauthenticated outside development
		if cfg.IsProduction() && cfg.APIKey == "" {
			log.Fatal("Production requires FUNNELSCOPE_API_KEY to be set")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.RecomputeIntervalMinutes <= 0 {
		return fmt.Errorf("recompute interval must be positive, got %d", c.RecomputeIntervalMinutes)
	}

	if c.EventsRetentionDays <= 0 {
		return fmt.Errorf("events retention must be positive, got %d", c.EventsRetentionDays)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port.
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (shared in-memory databases need a single connection)
// - Development/Production: 10 (allows concurrent reads for parallel report queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment.
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (matches MaxOpenConns)
// - Development/Production: 5 (keep half the connections warm for reuse)
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
