package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for collectordl
type Config struct {
	// Download scheduling and destination
	Download DownloadConfig `yaml:"download" json:"download"`

	// Mirror endpoints
	Mirrors MirrorConfig `yaml:"mirrors" json:"mirrors"`

	// Collection catalog
	Catalog CatalogConfig `yaml:"catalog" json:"catalog"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Prometheus metrics
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// DownloadConfig holds queue and retry configuration
type DownloadConfig struct {
	Concurrency       int           `yaml:"concurrency" json:"concurrency"`
	IntervalCap       int           `yaml:"interval_cap" json:"interval_cap"`
	Interval          time.Duration `yaml:"interval" json:"interval"`
	Parallel          bool          `yaml:"parallel" json:"parallel"`
	BaseDirectory     string        `yaml:"base_directory" json:"base_directory"`
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown" json:"rate_limit_cooldown"`
}

// MirrorConfig holds the download URL templates. Each template takes the
// beatmapset id through a single %d verb.
type MirrorConfig struct {
	Primary   string `yaml:"primary" json:"primary"`
	Alternate string `yaml:"alternate" json:"alternate"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// CatalogConfig holds the collection API location
type CatalogConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnComplete       bool   `yaml:"on_complete" json:"on_complete"`
	OnError          bool   `yaml:"on_error" json:"on_error"`
	OnRateLimit      bool   `yaml:"on_rate_limit" json:"on_rate_limit"`
	NotificationType string `yaml:"notification_type" json:"notification_type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// MetricsConfig holds the metrics listener address. Empty disables it.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Download: DownloadConfig{
			Concurrency:       5,
			IntervalCap:       10,
			Interval:          time.Second,
			Parallel:          true,
			BaseDirectory:     "./downloads",
			RequestTimeout:    2 * time.Minute,
			MaxRetries:        3,
			RateLimitCooldown: 60 * time.Second,
		},
		Mirrors: MirrorConfig{
			Primary:   "https://catboy.best/d/%d",
			Alternate: "https://api.nerinyan.moe/d/%d",
			UserAgent: "collectordl/1.0",
		},
		Catalog: CatalogConfig{
			BaseURL: "https://osucollector.com",
		},
		Notifications: NotificationConfig{
			Enabled:          true,
			OnComplete:       true,
			OnError:          true,
			OnRateLimit:      true,
			NotificationType: "terminal",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// EffectiveConcurrency returns the concurrency the queue should run with.
// Sequential mode always runs a single download at a time.
func (c *Config) EffectiveConcurrency() int {
	if !c.Download.Parallel {
		return 1
	}
	return c.Download.Concurrency
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("COLLECTORDL_CONCURRENCY"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.Download.Concurrency = val
		}
	}
	if v := os.Getenv("COLLECTORDL_INTERVAL_CAP"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.Download.IntervalCap = val
		}
	}
	if v := os.Getenv("COLLECTORDL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("COLLECTORDL_INTERVAL: %w", err))
		} else {
			c.Download.Interval = d
		}
	}
	if v := os.Getenv("COLLECTORDL_PARALLEL"); v != "" {
		c.Download.Parallel = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("COLLECTORDL_OUTPUT_DIR"); v != "" {
		c.Download.BaseDirectory = v
	}
	if v := os.Getenv("COLLECTORDL_RATE_LIMIT_COOLDOWN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("COLLECTORDL_RATE_LIMIT_COOLDOWN: %w", err))
		} else {
			c.Download.RateLimitCooldown = d
		}
	}

	// Mirrors
	if v := os.Getenv("COLLECTORDL_PRIMARY_MIRROR"); v != "" {
		c.Mirrors.Primary = v
	}
	if v := os.Getenv("COLLECTORDL_ALTERNATE_MIRROR"); v != "" {
		c.Mirrors.Alternate = v
	}
	if v := os.Getenv("COLLECTORDL_USER_AGENT"); v != "" {
		c.Mirrors.UserAgent = v
	}
	if v := os.Getenv("COLLECTORDL_CATALOG_URL"); v != "" {
		c.Catalog.BaseURL = v
	}

	if v := os.Getenv("COLLECTORDL_NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("COLLECTORDL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("COLLECTORDL_METRICS_ADDR"); v != "" {
		c.Metrics.ListenAddr = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	for _, loc := range DefaultLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// DefaultLocations lists the config file locations in order of precedence
func DefaultLocations() []string {
	home := os.Getenv("HOME")
	return []string{
		".collectordl.yaml",
		".collectordl.yml",
		filepath.Join(home, ".config", "collectordl", "config.yaml"),
		filepath.Join(home, ".config", "collectordl", "config.yml"),
		filepath.Join(home, ".collectordl.yaml"),
		filepath.Join(home, ".collectordl.yml"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Queue bounds
	if c.Download.Concurrency < 1 {
		errs = append(errs, errors.New("concurrency must be at least 1"))
	}
	if c.Download.Concurrency > 32 {
		errs = append(errs, errors.New("concurrency should not exceed 32"))
	}
	if c.Download.IntervalCap < 1 {
		errs = append(errs, errors.New("interval cap must be at least 1"))
	}
	if c.Download.Interval < 0 {
		errs = append(errs, errors.New("interval cannot be negative"))
	}
	if c.Download.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.Download.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.Download.RateLimitCooldown <= 0 {
		errs = append(errs, errors.New("rate limit cooldown must be positive"))
	}
	if c.Download.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	// Mirrors
	if !strings.Contains(c.Mirrors.Primary, "%d") {
		errs = append(errs, errors.New("primary mirror must contain a %d placeholder"))
	}
	if !strings.Contains(c.Mirrors.Alternate, "%d") {
		errs = append(errs, errors.New("alternate mirror must contain a %d placeholder"))
	}

	// Validate logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	// Validate notification type
	validNotifTypes := map[string]bool{
		"terminal": true, "desktop": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Download.BaseDirectory = outputDir
	}
	if concurrency, ok := flags["concurrency"].(int); ok && concurrency > 0 {
		c.Download.Concurrency = concurrency
	}
	if intervalCap, ok := flags["interval-cap"].(int); ok && intervalCap > 0 {
		c.Download.IntervalCap = intervalCap
	}
	if interval, ok := flags["interval"].(time.Duration); ok && interval >= 0 {
		c.Download.Interval = interval
	}
	if sequential, ok := flags["sequential"].(bool); ok && sequential {
		c.Download.Parallel = false
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if addr, ok := flags["metrics-addr"].(string); ok && addr != "" {
		c.Metrics.ListenAddr = addr
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".collectordl.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
