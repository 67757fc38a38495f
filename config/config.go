package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/langhuihui/rxcraft/gateway"
)

// Config represents the complete application configuration
type Config struct {
	Version string         `json:"version,omitempty"`
	Logging LoggingConfig  `json:"logging"`
	Gateway gateway.Config `json:"gateway"`
	Metrics MetricsConfig  `json:"metrics"`
	Engine  EngineConfig   `json:"engine"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level"`
	// Format is "text" or "json"
	Format string `json:"format"`
}

// MetricsConfig controls the Prometheus scrape endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// EngineConfig controls run construction
type EngineConfig struct {
	// EventHistory is the per-run event bus ring capacity
	EventHistory int `json:"event_history"`
	// PreloadSamples loads the builtin flow library at startup
	PreloadSamples bool `json:"preload_samples"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Gateway: gateway.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Engine: EngineConfig{
			EventHistory:   1024,
			PreloadSamples: true,
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("gateway configuration: %w", err)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port %d is out of range", c.Metrics.Port)
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics.path is required when metrics are enabled")
		}
		if c.Metrics.Port == c.Gateway.Port {
			return fmt.Errorf("metrics.port %d collides with gateway.port", c.Metrics.Port)
		}
	}

	if c.Engine.EventHistory < 0 {
		return errors.New("engine.event_history cannot be negative")
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
