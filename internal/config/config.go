// Package config provides configuration management for the risk service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultSampleCount is the Monte Carlo sample count when unset.
	defaultSampleCount = 100_000
	// defaultQuoteTimeout is the market-data HTTP timeout when unset.
	defaultQuoteTimeout = "10s"
	// defaultRefreshInterval is the auto-refresh cadence when unset.
	defaultRefreshInterval = "15m"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Server      ServerConfig      `yaml:"server"`
	MarketData  MarketDataConfig  `yaml:"market_data"`
	Simulation  SimulationConfig  `yaml:"simulation"`
	Refresh     RefreshConfig     `yaml:"refresh"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ServerConfig defines the dashboard API settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// MarketDataConfig defines quote provider API settings.
type MarketDataConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// SimulationConfig defines Monte Carlo parameters.
type SimulationConfig struct {
	SampleCount int     `yaml:"sample_count"`
	Drift       float64 `yaml:"drift"`
}

// RefreshConfig defines the automatic market-data refresh schedule.
type RefreshConfig struct {
	Auto     bool   `yaml:"auto"`
	Interval string `yaml:"interval"`
}

// StorageConfig defines storage settings for portfolio data.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
// It normalizes optional fields to defaults first.
func (c *Config) Validate() error {
	c.normalize()

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.MarketData.APIKey == "" {
		return fmt.Errorf("market_data.api_key is required")
	}
	if _, err := time.ParseDuration(c.MarketData.Timeout); err != nil {
		return fmt.Errorf("market_data.timeout invalid: %w", err)
	}

	if c.Simulation.SampleCount < 2 {
		return fmt.Errorf("simulation.sample_count must be at least 2")
	}

	if _, err := time.ParseDuration(c.Refresh.Interval); err != nil {
		return fmt.Errorf("refresh.interval invalid: %w", err)
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	switch c.Environment.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}

	return nil
}

func (c *Config) normalize() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.MarketData.Provider == "" {
		c.MarketData.Provider = "finnhub"
	}
	if c.MarketData.Timeout == "" {
		c.MarketData.Timeout = defaultQuoteTimeout
	}
	if c.Simulation.SampleCount == 0 {
		c.Simulation.SampleCount = defaultSampleCount
	}
	if c.Refresh.Interval == "" {
		c.Refresh.Interval = defaultRefreshInterval
	}
}

// QuoteTimeout returns the configured market-data timeout duration.
func (c *Config) QuoteTimeout() time.Duration {
	d, err := time.ParseDuration(c.MarketData.Timeout)
	if err != nil {
		return 10 * time.Second // default
	}
	return d
}

// RefreshInterval returns the configured auto-refresh interval.
func (c *Config) RefreshInterval() time.Duration {
	d, err := time.ParseDuration(c.Refresh.Interval)
	if err != nil {
		return 15 * time.Minute // default
	}
	return d
}
