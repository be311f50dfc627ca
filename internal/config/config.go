// Package config loads the YAML configuration file and maps it onto the
// per-package configuration structs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/cloudflare"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/metrics"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/reconcile"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/ufw"
)

const (
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultDataDir is the default data directory.
	DefaultDataDir = "/var/lib/cloudflare-ufw-sync"

	// DefaultConfigDir is the system configuration directory.
	DefaultConfigDir = "/etc/cloudflare-ufw-sync"

	// FileName is the configuration file name in every search location.
	FileName = "config.yml"

	// EnvFileName is the optional environment file next to the config.
	EnvFileName = "environment"

	// APIKeyEnv overrides cloudflare.api_key when set.
	APIKeyEnv = "CLOUDFLARE_API_KEY"
)

// CloudflareSection is the `cloudflare:` block.
type CloudflareSection struct {
	APIKey         string   `yaml:"api_key"`
	IPTypes        []string `yaml:"ip_types"`
	BaseURL        string   `yaml:"base_url"`
	RequestTimeout Duration `yaml:"request_timeout"`
	MaxRetries     int      `yaml:"max_retries"`
}

// UFWSection is the `ufw:` block.
type UFWSection struct {
	Binary        string `yaml:"binary"`
	DefaultPolicy string `yaml:"default_policy"`
	Port          int    `yaml:"port"`
	Proto         string `yaml:"proto"`
	Comment       string `yaml:"comment"`
}

// SyncSection is the `sync:` block.
type SyncSection struct {
	Interval     Duration `yaml:"interval"`
	RetryBackoff Duration `yaml:"retry_backoff"`

	// Enabled gates the sync command unless --force is given.
	// Default: true
	Enabled *bool `yaml:"enabled"`
}

// LoggingSection is the `logging:` block.
type LoggingSection struct {
	Level string `yaml:"level"`

	// File, when set, receives log output in addition to stderr.
	File string `yaml:"file"`
}

// MetricsSection is the `metrics:` block.
type MetricsSection struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Config is the top-level configuration. It is populated from a YAML file via
// ParseConfig or Load.
type Config struct {
	Cloudflare CloudflareSection `yaml:"cloudflare"`
	UFW        UFWSection        `yaml:"ufw"`
	Sync       SyncSection       `yaml:"sync"`
	Logging    LoggingSection    `yaml:"logging"`
	Metrics    MetricsSection    `yaml:"metrics"`

	// DataDir holds the last-sync status file.
	// Default: /var/lib/cloudflare-ufw-sync
	DataDir string `yaml:"data_dir"`

	// Source is the file the configuration was read from, empty when only
	// defaults are in effect.
	Source string `yaml:"-"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if len(c.Cloudflare.IPTypes) == 0 {
		c.Cloudflare.IPTypes = []string{string(cidr.FamilyV4), string(cidr.FamilyV6)}
	}
	if c.UFW.DefaultPolicy == "" {
		c.UFW.DefaultPolicy = string(ufw.PolicyDeny)
	}
	if c.Sync.Enabled == nil {
		enabled := true
		c.Sync.Enabled = &enabled
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
}

// SyncEnabled reports whether scheduled syncing is enabled.
func (c *Config) SyncEnabled() bool {
	return c.Sync.Enabled == nil || *c.Sync.Enabled
}

// Families returns the configured address families in canonical order.
func (c *Config) Families() ([]cidr.Family, error) {
	seen := make(map[cidr.Family]bool, len(c.Cloudflare.IPTypes))
	for _, s := range c.Cloudflare.IPTypes {
		f, err := cidr.ParseFamily(s)
		if err != nil {
			return nil, fmt.Errorf("config: cloudflare.ip_types: %w", err)
		}
		seen[f] = true
	}
	var out []cidr.Family
	for _, f := range cidr.Families {
		if seen[f] {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("config: cloudflare.ip_types must list v4, v6, or both")
	}
	return out, nil
}

// CloudflareConfig returns the client configuration.
func (c *Config) CloudflareConfig() cloudflare.Config {
	families, _ := c.Families()
	return cloudflare.Config{
		BaseURL:        c.Cloudflare.BaseURL,
		APIKey:         c.Cloudflare.APIKey,
		Families:       families,
		RequestTimeout: c.Cloudflare.RequestTimeout.Std(),
		MaxRetries:     c.Cloudflare.MaxRetries,
	}
}

// UFWConfig returns the firewall rule scope.
func (c *Config) UFWConfig() ufw.Config {
	return ufw.Config{
		Binary:        c.UFW.Binary,
		DefaultPolicy: ufw.Policy(strings.ToLower(c.UFW.DefaultPolicy)),
		Port:          c.UFW.Port,
		Proto:         strings.ToLower(c.UFW.Proto),
		Comment:       c.UFW.Comment,
	}
}

// ReconcileConfig returns the sync loop timing.
func (c *Config) ReconcileConfig() reconcile.Config {
	return reconcile.Config{
		Interval:     c.Sync.Interval.Std(),
		RetryBackoff: c.Sync.RetryBackoff.Std(),
	}
}

// MetricsConfig returns the metrics listener configuration.
func (c *Config) MetricsConfig() metrics.Config {
	return metrics.Config{
		Enabled: c.Metrics.Enabled,
		Listen:  c.Metrics.Listen,
	}
}

// Validate checks every section by building and validating the
// package-level configurations.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: invalid logging.level %q (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if _, err := c.Families(); err != nil {
		return err
	}

	cf := c.CloudflareConfig()
	cf.ApplyDefaults()
	if err := cf.Validate(); err != nil {
		return err
	}

	fw := c.UFWConfig()
	fw.ApplyDefaults()
	if err := fw.Validate(); err != nil {
		return err
	}

	rc := c.ReconcileConfig()
	rc.ApplyDefaults()
	if err := rc.Validate(); err != nil {
		return err
	}

	mc := c.MetricsConfig()
	mc.ApplyDefaults()
	if err := mc.Validate(); err != nil {
		return err
	}

	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	return nil
}

// applyEnv overrides file values from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(APIKeyEnv); ok && strings.TrimSpace(v) != "" {
		c.Cloudflare.APIKey = strings.TrimSpace(v)
	}
}

// ParseConfig reads a YAML configuration file and returns a Config.
// It applies environment overrides and defaults, then validates.
func ParseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Source = path
	return finish(cfg)
}

// Load resolves the configuration file and parses it. An explicit path must
// exist. Without one, SearchPaths are tried in order; when none exists the
// built-in defaults are used. The environment file next to the chosen config
// (or in DefaultConfigDir) is loaded into the process environment first,
// without overriding variables that are already set.
func Load(explicit string) (*Config, error) {
	path := explicit
	if path == "" {
		path = findConfig(SearchPaths())
	}

	envDir := DefaultConfigDir
	if path != "" {
		envDir = filepath.Dir(path)
	}
	if err := LoadEnvFile(filepath.Join(envDir, EnvFileName)); err != nil {
		return nil, err
	}

	if path == "" {
		return finish(&Config{})
	}
	return ParseConfig(path)
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load environment file %s: %w", path, err)
	}
	return nil
}

// SearchPaths returns the locations tried when no --config is given.
func SearchPaths() []string {
	paths := []string{filepath.Join(DefaultConfigDir, FileName)}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "cloudflare-ufw-sync", FileName))
	}
	return append(paths, FileName)
}

func findConfig(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyEnv(os.LookupEnv)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
