package blockwatch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/archon-research/liquidator/internal/adapters/outbound/chainrpc"
)

const (
	defaultSubscribeTimeout    = 5 * time.Second
	defaultPingInterval        = 5 * time.Minute
	defaultHealthCheckInterval = 2 * time.Minute
	defaultStaleAfter          = 10 * time.Minute
	defaultReconnectDelay      = 2 * time.Second
	defaultAllFailedDelay      = 10 * time.Second
	defaultHandshakeTimeout    = 10 * time.Second

	filterPollHot   = 10 * time.Millisecond
	filterPollIdle  = 20 * time.Millisecond
	filterPollError = 40 * time.Millisecond

	pollBackoffMin = 10 * time.Millisecond
	pollBackoffMax = 80 * time.Millisecond
)

// Config configures a Watcher. RPC is required; WebSocket endpoints are
// optional and their absence degrades the watcher to the HTTP tiers.
type Config struct {
	// Endpoints are WebSocket URLs tried in priority order.
	Endpoints []string

	// Optional header attached to the WebSocket handshake, e.g. an API key.
	AuthHeaderName  string
	AuthHeaderValue string

	// RPC serves the block filter and polling tiers, plus number recovery.
	RPC *chainrpc.Client

	Logger *slog.Logger

	// Tunables below default to production values; tests shrink them.
	SubscribeTimeout    time.Duration // wait for the eth_subscribe reply
	PingInterval        time.Duration // application-level keep-alive request
	HealthCheckInterval time.Duration
	StaleAfter          time.Duration // no head for this long means dead
	ReconnectDelay      time.Duration // after losing an established connection
	AllFailedDelay      time.Duration // after the whole endpoint list fails
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.RPC == nil {
		return fmt.Errorf("RPC client is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = defaultSubscribeTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = defaultHealthCheckInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.AllFailedDelay <= 0 {
		c.AllFailedDelay = defaultAllFailedDelay
	}
}
