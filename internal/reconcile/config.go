package reconcile

import (
	"errors"
	"time"
)

// Config holds the configuration for the sync loop.
// Config is passed as a constructor argument; no file I/O in this package.
type Config struct {
	// Interval is the time between successful sync cycles.
	// Default: 24h
	Interval time.Duration

	// RetryBackoff is the wait after a cycle fails with an unrecoverable
	// error, such as an unreachable provider or a missing ufw binary.
	// Default: 60s
	RetryBackoff time.Duration
}

// DefaultInterval is the default sync interval.
const DefaultInterval = 24 * time.Hour

// DefaultRetryBackoff is the default wait after a failed cycle.
const DefaultRetryBackoff = 60 * time.Second

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	if c.Interval < 0 {
		return errors.New("reconcile: config: Interval must not be negative")
	}
	if c.Interval < time.Second {
		return errors.New("reconcile: config: Interval must be at least 1s")
	}
	if c.RetryBackoff < time.Second {
		return errors.New("reconcile: config: RetryBackoff must be at least 1s")
	}
	return nil
}
