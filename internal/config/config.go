// Package config provides centralized configuration management for the candlestick downloader.
// Configuration is layered: built-in defaults, then an optional JSON or YAML file, then
// environment variables, and the result is validated before any component sees it.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override recognised by the loader.
const EnvPrefix = "CANDLESTICKS_"

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Application metadata
	AppName    string `json:"app_name" yaml:"app_name"`
	Version    string `json:"version" yaml:"version"`
	ConfigPath string `json:"-" yaml:"-"`

	Exchange    ExchangeConfig    `json:"exchange" yaml:"exchange"`
	Acquisition AcquisitionConfig `json:"acquisition" yaml:"acquisition"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Export      ExportConfig      `json:"export" yaml:"export"`
	Console     ConsoleConfig     `json:"console" yaml:"console"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
}

// ExchangeConfig configures the Bitfinex REST client
type ExchangeConfig struct {
	BaseURLV1         string            `json:"base_url_v1" yaml:"base_url_v1"`                 // Symbol list API root
	BaseURLV2         string            `json:"base_url_v2" yaml:"base_url_v2"`                 // Candle API root
	Timeout           string            `json:"timeout" yaml:"timeout"`                         // HTTP request timeout
	RequestsPerMinute int               `json:"requests_per_minute" yaml:"requests_per_minute"` // Client-side limit, 0 disables it
	RecordsPerRequest int               `json:"records_per_request" yaml:"records_per_request"` // limit query parameter
	RetryPolicy       RetryPolicyConfig `json:"retry_policy" yaml:"retry_policy"`
}

// RetryPolicyConfig configures the fixed-delay retry of transport failures
type RetryPolicyConfig struct {
	MaxAttempts int    `json:"max_attempts" yaml:"max_attempts"` // Total attempts including the first
	Delay       string `json:"delay" yaml:"delay"`               // Pause between attempts
}

// AcquisitionConfig configures the pagination loop. Slices are always one day wide.
type AcquisitionConfig struct {
	CourtesyDelay string `json:"courtesy_delay" yaml:"courtesy_delay"` // Pause between consecutive slices
}

// StorageConfig configures the persistence backend
type StorageConfig struct {
	Type        string `json:"type" yaml:"type"`                 // "sqlite", "duckdb", "postgres", "memory"
	Directory   string `json:"directory" yaml:"directory"`       // Where file databases are created
	DatabaseURL string `json:"database_url" yaml:"database_url"` // Connection string for postgres
}

// ExportConfig configures the spreadsheet export
type ExportConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Directory string `json:"directory" yaml:"directory"`
	SheetName string `json:"sheet_name" yaml:"sheet_name"`
}

// ConsoleConfig configures the live progress table
type ConsoleConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	MaxRows int  `json:"max_rows" yaml:"max_rows"` // Newest rows shown, 0 shows all
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level         string            `json:"level" yaml:"level"`             // Log level: debug, info, warn, error
	Format        string            `json:"format" yaml:"format"`           // Log format: json, text
	Output        string            `json:"output" yaml:"output"`           // Output: stdout, stderr, file
	FilePath      string            `json:"file_path" yaml:"file_path"`     // Log file path
	MaxSize       int               `json:"max_size" yaml:"max_size"`       // Maximum log file size in MB
	MaxBackups    int               `json:"max_backups" yaml:"max_backups"` // Maximum log file backups
	MaxAge        int               `json:"max_age" yaml:"max_age"`         // Maximum log file age in days
	Compress      bool              `json:"compress" yaml:"compress"`       // Compress old log files
	ContextFields map[string]string `json:"context_fields" yaml:"context_fields"`
}

// ConfigManager handles configuration loading and validation
type ConfigManager struct {
	config     *AppConfig
	configPath string
	logger     *slog.Logger
}

// NewConfigManager creates a new configuration manager
func NewConfigManager(configPath string, logger *slog.Logger) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigManager{
		configPath: configPath,
		logger:     logger,
	}
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Environment variables (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
func (cm *ConfigManager) LoadConfig(ctx context.Context) (*AppConfig, error) {
	config := DefaultConfig()
	config.ConfigPath = cm.configPath

	if cm.configPath != "" {
		if err := cm.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	cm.loadFromEnv(config)

	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.config = config

	cm.logger.Debug("configuration loaded",
		"config_path", cm.configPath,
		"storage_type", config.Storage.Type,
		"courtesy_delay", config.Acquisition.CourtesyDelay,
		"log_level", config.Logging.Level)

	return config, nil
}

// loadFromFile decodes the config file; the extension picks YAML or JSON.
func (cm *ConfigManager) loadFromFile(config *AppConfig) error {
	if _, err := os.Stat(cm.configPath); os.IsNotExist(err) {
		cm.logger.Debug("config file does not exist, using defaults", "path", cm.configPath)
		return nil
	}

	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cm.configPath, err)
	}

	switch strings.ToLower(filepath.Ext(cm.configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cm.configPath, err)
	}

	cm.logger.Debug("loaded configuration from file", "path", cm.configPath)
	return nil
}

func (cm *ConfigManager) loadFromEnv(config *AppConfig) {
	setString := func(key string, dst *string) {
		if val := os.Getenv(EnvPrefix + key); val != "" {
			*dst = val
		}
	}
	setInt := func(key string, dst *int) {
		if val := os.Getenv(EnvPrefix + key); val != "" {
			if n, err := strconv.Atoi(val); err == nil {
				*dst = n
			} else {
				cm.logger.Warn("ignoring non-numeric environment override", "key", EnvPrefix+key, "value", val)
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if val := os.Getenv(EnvPrefix + key); val != "" {
			*dst = val == "true" || val == "1"
		}
	}

	setString("EXCHANGE_V1_URL", &config.Exchange.BaseURLV1)
	setString("EXCHANGE_V2_URL", &config.Exchange.BaseURLV2)
	setString("HTTP_TIMEOUT", &config.Exchange.Timeout)
	setInt("REQUESTS_PER_MINUTE", &config.Exchange.RequestsPerMinute)
	setInt("RETRY_MAX_ATTEMPTS", &config.Exchange.RetryPolicy.MaxAttempts)
	setString("RETRY_DELAY", &config.Exchange.RetryPolicy.Delay)

	setString("COURTESY_DELAY", &config.Acquisition.CourtesyDelay)

	setString("STORAGE_TYPE", &config.Storage.Type)
	setString("STORAGE_DIR", &config.Storage.Directory)
	setString("DATABASE_URL", &config.Storage.DatabaseURL)

	setBool("EXPORT_ENABLED", &config.Export.Enabled)
	setString("EXPORT_DIR", &config.Export.Directory)

	setBool("CONSOLE_ENABLED", &config.Console.Enabled)
	setInt("CONSOLE_MAX_ROWS", &config.Console.MaxRows)

	setString("LOG_LEVEL", &config.Logging.Level)
	setString("LOG_FORMAT", &config.Logging.Format)
	setString("LOG_OUTPUT", &config.Logging.Output)
	setString("LOG_FILE_PATH", &config.Logging.FilePath)
}

// validateConfig validates the configuration for consistency and required fields
func (cm *ConfigManager) validateConfig(config *AppConfig) error {
	var errors []string

	if config.Exchange.BaseURLV1 == "" {
		errors = append(errors, "exchange.base_url_v1 is required")
	}
	if config.Exchange.BaseURLV2 == "" {
		errors = append(errors, "exchange.base_url_v2 is required")
	}
	if _, err := time.ParseDuration(config.Exchange.Timeout); err != nil {
		errors = append(errors, fmt.Sprintf("exchange.timeout is not a valid duration: %v", err))
	}
	if config.Exchange.RequestsPerMinute < 0 {
		errors = append(errors, "exchange.requests_per_minute must not be negative")
	}
	if config.Exchange.RecordsPerRequest <= 0 {
		errors = append(errors, "exchange.records_per_request must be greater than 0")
	}
	if config.Exchange.RetryPolicy.MaxAttempts <= 0 {
		errors = append(errors, "exchange.retry_policy.max_attempts must be greater than 0")
	}
	if d, err := time.ParseDuration(config.Exchange.RetryPolicy.Delay); err != nil || d < 0 {
		errors = append(errors, "exchange.retry_policy.delay must be a non-negative duration")
	}

	if d, err := time.ParseDuration(config.Acquisition.CourtesyDelay); err != nil || d < 0 {
		errors = append(errors, "acquisition.courtesy_delay must be a non-negative duration")
	}

	switch config.Storage.Type {
	case "sqlite", "duckdb", "memory":
	case "postgres":
		if config.Storage.DatabaseURL == "" {
			errors = append(errors, "storage.database_url is required for postgres storage")
		}
	case "":
		errors = append(errors, "storage.type is required")
	default:
		errors = append(errors, "storage.type must be one of: sqlite, duckdb, postgres, memory")
	}

	if config.Export.Enabled && config.Export.SheetName == "" {
		errors = append(errors, "export.sheet_name is required when export is enabled")
	}
	if config.Console.MaxRows < 0 {
		errors = append(errors, "console.max_rows must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[config.Logging.Level] {
		errors = append(errors, "logging.level must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[config.Logging.Format] {
		errors = append(errors, "logging.format must be one of: json, text")
	}
	if config.Logging.Output == "file" && config.Logging.FilePath == "" {
		errors = append(errors, "logging.file_path is required when logging.output is file")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *AppConfig {
	return cm.config
}

// DefaultConfig returns the configuration the downloader ships with.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "crypto-candlesticks",
		Version: "1.0.0",
		Exchange: ExchangeConfig{
			BaseURLV1:         "https://api.bitfinex.com/v1",
			BaseURLV2:         "https://api.bitfinex.com/v2",
			Timeout:           "30s",
			RequestsPerMinute: 0,
			RecordsPerRequest: 10000,
			RetryPolicy: RetryPolicyConfig{
				MaxAttempts: 15,
				Delay:       "1s",
			},
		},
		Acquisition: AcquisitionConfig{
			CourtesyDelay: "500ms",
		},
		Storage: StorageConfig{
			Type:      "sqlite",
			Directory: ".",
		},
		Export: ExportConfig{
			Enabled:   true,
			Directory: ".",
			SheetName: "Crypto-candlesticks",
		},
		Console: ConsoleConfig{
			Enabled: true,
			MaxRows: 0,
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Format:     "text",
			Output:     "stderr",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
			ContextFields: map[string]string{
				"service": "crypto-candlesticks",
			},
		},
	}
}

// HTTPTimeout returns the parsed exchange timeout.
func (c ExchangeConfig) HTTPTimeout() time.Duration {
	return durationOrZero(c.Timeout)
}

// RetryDelay returns the parsed pause between retry attempts.
func (c RetryPolicyConfig) RetryDelay() time.Duration {
	return durationOrZero(c.Delay)
}

// CourtesyPause returns the parsed pause between slices.
func (c AcquisitionConfig) CourtesyPause() time.Duration {
	return durationOrZero(c.CourtesyDelay)
}

// durationOrZero expects configuration that already passed validation.
func durationOrZero(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// String returns a JSON representation of the configuration with credentials removed
func (c *AppConfig) String() string {
	sanitized := *c
	if sanitized.Storage.DatabaseURL != "" {
		sanitized.Storage.DatabaseURL = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(&sanitized, "", "  ")
	return string(data)
}
