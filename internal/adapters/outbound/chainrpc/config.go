package chainrpc

import (
	"errors"
	"log/slog"
	"time"
)

const defaultTimeout = 30 * time.Second

// Config holds the configuration for the JSON-RPC client.
type Config struct {
	// HTTPURL is the public node endpoint. Required.
	HTTPURL string

	// PrivateURL is an optional second endpoint for private transaction
	// submission. Requests to it carry the same JSON-RPC body as the public
	// one.
	PrivateURL string

	// AuthHeaderName/AuthHeaderValue are attached to every request when both
	// are set (e.g. "Authorization" / "Bearer ...").
	AuthHeaderName  string
	AuthHeaderValue string

	// Timeout bounds each HTTP round trip. Defaults to 30 seconds.
	Timeout time.Duration

	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.HTTPURL == "" {
		return errors.New("HTTPURL is required")
	}
	return nil
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
