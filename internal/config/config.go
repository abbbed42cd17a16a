// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
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

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// Remote store settings
	DatabaseURL       string `mapstructure:"databaseurl"`
	DatabaseAuthToken string `mapstructure:"databaseauthtoken"`

	// Geolocation settings
	GeoDBPath         string `mapstructure:"geodbpath"`
	GeoAPIURL         string `mapstructure:"geoapiurl"`
	GeoTimeoutSeconds int    `mapstructure:"geotimeoutseconds"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Job scheduling settings
	JobIntervalSeconds int    `mapstructure:"jobintervalseconds"`
	MaxMindLicenseKey  string `mapstructure:"maxmindlicensekey"`
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
		v.SetDefault("appname", "lantern")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("databaseurl", "")
		v.SetDefault("databaseauthtoken", "")
		v.SetDefault("geodbpath", "storage/GeoLite2-Country.mmdb")
		v.SetDefault("geoapiurl", "https://ip-api.com/json/%s?fields=countryCode")
		v.SetDefault("geotimeoutseconds", 5)
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("jobintervalseconds", 60)
		v.SetDefault("maxmindlicensekey", "")

		// Bind environment variables
		v.BindEnv("appname", "LANTERN_APP_NAME")
		v.BindEnv("appport", "LANTERN_APP_PORT")
		v.BindEnv("environment", "LANTERN_ENV")
		v.BindEnv("loglevel", "LANTERN_LOG_LEVEL")
		v.BindEnv("privatekey", "LANTERN_PRIVATE_KEY")
		v.BindEnv("databaseurl", "LANTERN_DATABASE_URL")
		v.BindEnv("databaseauthtoken", "LANTERN_DATABASE_AUTH_TOKEN")
		v.BindEnv("geodbpath", "LANTERN_GEO_DB_PATH")
		v.BindEnv("geoapiurl", "LANTERN_GEO_API_URL")
		v.BindEnv("geotimeoutseconds", "LANTERN_GEO_TIMEOUT_SECONDS")
		v.BindEnv("logsdir", "LANTERN_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "LANTERN_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "LANTERN_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "LANTERN_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("jobintervalseconds", "LANTERN_JOB_INTERVAL_SECONDS")
		v.BindEnv("maxmindlicensekey", "LANTERN_MAXMIND_LICENSE_KEY")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Private key must be explicitly set in production (not empty, not default)
		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique LANTERN_PRIVATE_KEY (cannot use default)")
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

	if c.GeoTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid geo timeout: %d", c.GeoTimeoutSeconds)
	}

	if c.DatabaseURL != "" {
		if _, err := url.Parse(c.DatabaseURL); err != nil {
			return fmt.Errorf("invalid database URL: %w", err)
		}
	}

	return nil
}

// AnalyticsEnabled reports whether a remote store is configured.
// Without it the service runs in disabled mode and acknowledges
// beacons without persisting them.
func (c *Config) AnalyticsEnabled() bool {
	return c.DatabaseURL != ""
}

// PipelineURL returns the HTTP endpoint for the remote store's batch API.
// Custom schemes (libsql://, wss://) are normalized to https; plain
// http:// is left alone for local setups.
func (c *Config) PipelineURL() string {
	if c.DatabaseURL == "" {
		return ""
	}

	normalized := c.DatabaseURL
	for _, scheme := range []string{"libsql://", "wss://", "ws://"} {
		if strings.HasPrefix(normalized, scheme) {
			normalized = "https://" + strings.TrimPrefix(normalized, scheme)
			break
		}
	}
	return strings.TrimSuffix(normalized, "/") + "/v2/pipeline"
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

// GetLogLevel returns the log level as a string.
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
