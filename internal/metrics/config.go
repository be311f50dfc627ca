// Package metrics exposes sync-cycle metrics in the Prometheus text format.
package metrics

import (
	"errors"
	"net"
	"time"
)

// DefaultListen is the default metrics listen address.
const DefaultListen = "127.0.0.1:9798"

// DefaultShutdownTimeout is the default graceful shutdown timeout.
const DefaultShutdownTimeout = 5 * time.Second

// Config holds the configuration for the metrics listener.
// Config is passed as a constructor argument; no file I/O in this package.
type Config struct {
	// Enabled starts the HTTP listener in daemon mode.
	// Default: false
	Enabled bool

	// Listen is the TCP listen address.
	// Default: 127.0.0.1:9798
	Listen string

	// ShutdownTimeout is the maximum time to wait for a graceful shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return errors.New("metrics: config: Listen must be host:port")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("metrics: config: ShutdownTimeout must be positive")
	}
	return nil
}
