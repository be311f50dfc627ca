package cloudflare

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
)

// Config holds the configuration for the Cloudflare IP-range client.
// Config is passed as a constructor argument; no file I/O in this package.
type Config struct {
	// BaseURL is the API origin.
	// Default: "https://api.cloudflare.com"
	BaseURL string

	// APIKey is sent as a bearer token when set. The ranges endpoint is
	// public, so it is optional.
	APIKey string

	// Families selects which address families are requested.
	// Default: v4 and v6
	Families []cidr.Family

	// ConnectTimeout is the maximum time to wait for a TCP connection.
	// Default: 10s
	ConnectTimeout time.Duration

	// RequestTimeout is the maximum time for a complete request/response cycle.
	// Default: 30s
	RequestTimeout time.Duration

	// MaxRetries is the number of extra attempts after a transient failure
	// (transport error, 429 or 5xx). Negative disables retries.
	// Default: 2
	MaxRetries int

	// RetryDelay is the wait before the first retry; it doubles per attempt.
	// Default: 1s
	RetryDelay time.Duration
}

// DefaultBaseURL is the public Cloudflare API origin.
const DefaultBaseURL = "https://api.cloudflare.com"

// DefaultConnectTimeout is the default TCP connect timeout.
const DefaultConnectTimeout = 10 * time.Second

// DefaultRequestTimeout is the default HTTP request timeout.
const DefaultRequestTimeout = 30 * time.Second

// DefaultMaxRetries is the default number of retries after a transient failure.
const DefaultMaxRetries = 2

// DefaultRetryDelay is the default wait before the first retry.
const DefaultRetryDelay = time.Second

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if len(c.Families) == 0 {
		c.Families = append([]cidr.Family(nil), cidr.Families...)
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("cloudflare: config: BaseURL %q is not an absolute URL", c.BaseURL)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("cloudflare: config: BaseURL scheme %q is not supported", u.Scheme)
	}
	if len(c.Families) == 0 {
		return errors.New("cloudflare: config: at least one address family is required")
	}
	for _, f := range c.Families {
		if _, err := cidr.ParseFamily(string(f)); err != nil {
			return fmt.Errorf("cloudflare: config: %w", err)
		}
	}
	if c.RequestTimeout < 0 || c.ConnectTimeout < 0 {
		return errors.New("cloudflare: config: timeouts must not be negative")
	}
	if c.RetryDelay < 0 {
		return errors.New("cloudflare: config: RetryDelay must not be negative")
	}
	return nil
}
