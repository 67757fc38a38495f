package gateway

import (
	"fmt"

	"github.com/langhuihui/rxcraft/errors"
)

// Config holds the HTTP gateway configuration
type Config struct {
	// Port the gateway listens on
	Port int `json:"port"`
	// EnableCORS toggles cross-origin headers for browser editors
	EnableCORS bool `json:"enable_cors"`
	// CORSOrigins lists allowed origins; "*" allows any
	CORSOrigins []string `json:"cors_origins,omitempty"`
	// MaxRequestSize caps request bodies in bytes
	MaxRequestSize int64 `json:"max_request_size"`
	// EventBuffer is the per-client websocket event channel size
	EventBuffer int `json:"event_buffer"`
}

// DefaultConfig returns the default gateway configuration
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		EnableCORS:     true,
		CORSOrigins:    []string{"*"},
		MaxRequestSize: 1 << 20,
		EventBuffer:    256,
	}
}

// Validate checks the configuration for usable values
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: invalid port %d", errors.ErrInvalidConfig, c.Port),
			"gateway", "Validate", "config validation")
	}
	if c.MaxRequestSize <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: max request size must be positive", errors.ErrInvalidConfig),
			"gateway", "Validate", "config validation")
	}
	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: CORS enabled but no origins configured", errors.ErrInvalidConfig),
			"gateway", "Validate", "config validation")
	}
	return nil
}
