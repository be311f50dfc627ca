// Package ufw drives the Uncomplicated Firewall command-line tool and parses
// its rule listings.
package ufw

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds the UFW rule scope and tool location.
// Config is passed as a constructor argument; no file I/O in this package.
type Config struct {
	// Binary is the ufw executable name or path.
	// Default: ufw
	Binary string

	// DefaultPolicy is applied to incoming traffic before each sync.
	// "none" leaves the policy untouched. Default: deny
	DefaultPolicy Policy

	// Port is the protected destination port.
	// Default: 443
	Port int

	// Proto is the protected protocol, "tcp" or "udp".
	// Default: tcp
	Proto string

	// Comment tags every rule created by this tool and scopes which rules
	// may be deleted.
	// Default: "Cloudflare IP"
	Comment string
}

const (
	DefaultBinary  = "ufw"
	DefaultPort    = 443
	DefaultProto   = "tcp"
	DefaultComment = "Cloudflare IP"
	DefaultPolicy  = PolicyDeny
)

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Binary == "" {
		c.Binary = DefaultBinary
	}
	if c.DefaultPolicy == "" {
		c.DefaultPolicy = DefaultPolicy
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Proto == "" {
		c.Proto = DefaultProto
	}
	if c.Comment == "" {
		c.Comment = DefaultComment
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	if c.Binary == "" {
		return errors.New("ufw: config: Binary is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("ufw: config: invalid port %d", c.Port)
	}
	if c.Proto != "tcp" && c.Proto != "udp" {
		return fmt.Errorf("ufw: config: invalid proto %q (must be \"tcp\" or \"udp\")", c.Proto)
	}
	if c.DefaultPolicy != PolicyNone && !c.DefaultPolicy.Valid() {
		return fmt.Errorf("ufw: config: invalid default_policy %q", c.DefaultPolicy)
	}
	if strings.TrimSpace(c.Comment) == "" {
		return errors.New("ufw: config: Comment must not be empty")
	}
	if strings.ContainsAny(c.Comment, "'\"\n\r") {
		return fmt.Errorf("ufw: config: Comment %q must not contain quotes or newlines", c.Comment)
	}
	return nil
}

// Selector returns the rule scope described by c.
func (c *Config) Selector() Selector {
	return Selector{Port: c.Port, Protocol: c.Proto, Tag: c.Comment}
}
