package ufw

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Policy is a UFW default policy for incoming traffic.
type Policy string

const (
	PolicyAllow  Policy = "allow"
	PolicyDeny   Policy = "deny"
	PolicyReject Policy = "reject"

	// PolicyNone disables default policy management.
	PolicyNone Policy = "none"
)

// Valid reports whether p is a policy ufw accepts.
func (p Policy) Valid() bool {
	switch p {
	case PolicyAllow, PolicyDeny, PolicyReject:
		return true
	}
	return false
}

// AllowRule describes an inbound allow rule scoped by a comment tag.
type AllowRule struct {
	Protocol string
	Port     int
	Source   string
	Comment  string
}

// Controller is the line-oriented firewall control port. Every call is one
// external invocation; a nil error means the tool exited successfully.
type Controller interface {
	// Available returns ErrNotInstalled when the tool cannot be executed.
	Available(ctx context.Context) error
	// StatusNumbered returns the `status numbered` listing.
	StatusNumbered(ctx context.Context) (string, error)
	// StatusVerbose returns the `status verbose` listing.
	StatusVerbose(ctx context.Context) (string, error)
	// Allow adds an inbound allow rule.
	Allow(ctx context.Context, rule AllowRule) (string, error)
	// Delete removes the rule with the given index.
	Delete(ctx context.Context, index int) (string, error)
	// SetDefaultPolicy sets the default incoming policy.
	SetDefaultPolicy(ctx context.Context, policy Policy) (string, error)
	// Enable activates the firewall; force skips the interactive prompt.
	Enable(ctx context.Context, force bool) (string, error)
}

// CLI implements Controller by invoking the ufw binary.
type CLI struct {
	binary string
	runner CommandRunner
	logger *slog.Logger
}

// NewCLI creates a CLI controller. Config defaults are applied automatically.
func NewCLI(cfg Config, runner CommandRunner, logger *slog.Logger) *CLI {
	cfg.ApplyDefaults()
	return &CLI{
		binary: cfg.Binary,
		runner: runner,
		logger: logger.With("component", "ufw"),
	}
}

// Available checks that the ufw binary resolves on PATH.
func (c *CLI) Available(_ context.Context) error {
	if _, err := c.runner.LookPath(c.binary); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotInstalled, c.binary, err)
	}
	return nil
}

func (c *CLI) StatusNumbered(ctx context.Context) (string, error) {
	return c.run(ctx, "status", "numbered")
}

func (c *CLI) StatusVerbose(ctx context.Context) (string, error) {
	return c.run(ctx, "status", "verbose")
}

func (c *CLI) Allow(ctx context.Context, rule AllowRule) (string, error) {
	if rule.Source == "" {
		return "", fmt.Errorf("ufw: allow: source is required")
	}
	args := []string{
		"allow",
		"proto", rule.Protocol,
		"from", rule.Source,
		"to", "any",
		"port", strconv.Itoa(rule.Port),
	}
	if rule.Comment != "" {
		args = append(args, "comment", rule.Comment)
	}
	return c.run(ctx, args...)
}

// Delete runs `ufw --force delete N`; without --force ufw waits for a
// confirmation on stdin.
func (c *CLI) Delete(ctx context.Context, index int) (string, error) {
	if index < 1 {
		return "", fmt.Errorf("ufw: delete: invalid rule index %d", index)
	}
	return c.run(ctx, "--force", "delete", strconv.Itoa(index))
}

func (c *CLI) SetDefaultPolicy(ctx context.Context, policy Policy) (string, error) {
	if !policy.Valid() {
		return "", fmt.Errorf("ufw: invalid policy %q", policy)
	}
	return c.run(ctx, "default", string(policy), "incoming")
}

func (c *CLI) Enable(ctx context.Context, force bool) (string, error) {
	if force {
		return c.run(ctx, "--force", "enable")
	}
	return c.run(ctx, "enable")
}

func (c *CLI) run(ctx context.Context, args ...string) (string, error) {
	c.logger.Debug("running command", "binary", c.binary, "args", strings.Join(args, " "))
	out, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		return string(out), newCommandError(args, out, err)
	}
	return string(out), nil
}

// IsActive reports whether `status verbose` output shows an enabled firewall.
func IsActive(statusVerbose string) bool {
	return strings.Contains(statusVerbose, "Status: active")
}
