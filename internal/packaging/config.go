// Package packaging installs cloudflare-ufw-sync as a systemd service.
package packaging

import (
	"errors"
)

// InstallConfig holds the configuration for installing the systemd service.
// InstallConfig is passed as a constructor argument; no file I/O in this package.
type InstallConfig struct {
	// BinaryPath is the path to install the binary.
	// Default: /usr/local/bin/cloudflare-ufw-sync
	BinaryPath string

	// ConfigDir is the configuration directory.
	// Default: /etc/cloudflare-ufw-sync
	ConfigDir string

	// DataDir holds the last-sync status file.
	// Default: /var/lib/cloudflare-ufw-sync
	DataDir string

	// UnitFilePath is the path for the systemd unit file.
	// Default: /etc/systemd/system/cloudflare-ufw-sync.service
	UnitFilePath string

	// ServiceName is the systemd service name.
	// Default: cloudflare-ufw-sync
	ServiceName string

	// UFWStateDirs are made writable inside the unit's sandbox.
	// Default: /etc/ufw, /lib/ufw
	UFWStateDirs []string

	// APIKey, when set, is written to the environment file as
	// CLOUDFLARE_API_KEY.
	APIKey string

	// NoEnable skips enabling and starting the service after install.
	NoEnable bool
}

// DefaultBinaryPath is the default path to install the binary.
const DefaultBinaryPath = "/usr/local/bin/cloudflare-ufw-sync"

// DefaultConfigDir is the default configuration directory.
const DefaultConfigDir = "/etc/cloudflare-ufw-sync"

// DefaultDataDir is the default data directory.
const DefaultDataDir = "/var/lib/cloudflare-ufw-sync"

// DefaultServiceName is the default systemd service name.
const DefaultServiceName = "cloudflare-ufw-sync"

// DefaultUnitFilePath is the default path for the systemd unit file.
const DefaultUnitFilePath = "/etc/systemd/system/cloudflare-ufw-sync.service"

// ConfigFileName is the name of the config file inside ConfigDir.
const ConfigFileName = "config.yml"

// EnvFileName is the optional environment file inside ConfigDir.
const EnvFileName = "environment"

// DefaultUFWStateDirs are the directories ufw writes when rules change.
var DefaultUFWStateDirs = []string{"/etc/ufw", "/lib/ufw"}

// ApplyDefaults sets default values for zero-valued fields.
func (c *InstallConfig) ApplyDefaults() {
	if c.BinaryPath == "" {
		c.BinaryPath = DefaultBinaryPath
	}
	if c.ConfigDir == "" {
		c.ConfigDir = DefaultConfigDir
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.UnitFilePath == "" {
		c.UnitFilePath = DefaultUnitFilePath
	}
	if len(c.UFWStateDirs) == 0 {
		c.UFWStateDirs = append([]string(nil), DefaultUFWStateDirs...)
	}
}

// Validate checks that required fields are set.
func (c *InstallConfig) Validate() error {
	if c.BinaryPath == "" {
		return errors.New("packaging: config: BinaryPath is required")
	}
	if c.ConfigDir == "" {
		return errors.New("packaging: config: ConfigDir is required")
	}
	if c.DataDir == "" {
		return errors.New("packaging: config: DataDir is required")
	}
	if c.ServiceName == "" {
		return errors.New("packaging: config: ServiceName is required")
	}
	if c.UnitFilePath == "" {
		return errors.New("packaging: config: UnitFilePath is required")
	}
	return nil
}
