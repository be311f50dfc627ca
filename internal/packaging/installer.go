package packaging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/fsutil"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/integrity"
)

const maxAPIKeyLength = 512

// APIKeyEnv is the environment variable carrying the Cloudflare API key.
const APIKeyEnv = "CLOUDFLARE_API_KEY"

// Installer handles installing and uninstalling the systemd service.
type Installer struct {
	cfg     InstallConfig
	systemd SystemdController
	root    RootChecker
	logger  *slog.Logger

	// executable resolves the running binary; replaced in tests.
	executable func() (string, error)
}

// NewInstaller creates a new Installer with defaults applied.
func NewInstaller(cfg InstallConfig, systemd SystemdController, root RootChecker, logger *slog.Logger) *Installer {
	cfg.ApplyDefaults()
	return &Installer{
		cfg:        cfg,
		systemd:    systemd,
		root:       root,
		logger:     logger.With("component", "packaging"),
		executable: os.Executable,
	}
}

// Install installs the binary, config, and unit file, then enables and starts
// the service unless NoEnable is set.
func (ins *Installer) Install() error {
	// 1. Check root
	if !ins.root.IsRoot() {
		return errors.New("packaging: install requires root privileges")
	}

	// 2. Check systemd
	if !ins.systemd.IsAvailable() {
		return errors.New("packaging: systemd is not available")
	}

	if err := ins.cfg.Validate(); err != nil {
		return err
	}
	if err := validateAPIKey(ins.cfg.APIKey); err != nil {
		return err
	}

	// 3. Create directories
	for _, dir := range []string{ins.cfg.ConfigDir, ins.cfg.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("packaging: create directory %s: %w", dir, err)
		}
		ins.logger.Info("directory created", "path", dir)
	}

	// 4. Copy binary
	if err := ins.copyBinary(); err != nil {
		return err
	}

	// 5. Write default config if absent
	configPath := filepath.Join(ins.cfg.ConfigDir, ConfigFileName)
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		content := GenerateDefaultConfig(ins.cfg.DataDir)
		if err := fsutil.WriteFileAtomic(ins.cfg.ConfigDir, ConfigFileName, []byte(content), 0o644); err != nil {
			return fmt.Errorf("packaging: write config: %w", err)
		}
		ins.logger.Info("default config written", "path", configPath)
	} else if err == nil {
		ins.logger.Info("existing config preserved", "path", configPath)
	} else {
		return fmt.Errorf("packaging: stat config: %w", err)
	}

	// 6. Write API key if provided
	if err := ins.writeEnvFile(); err != nil {
		return err
	}

	// 7. Write unit file
	unitDir, unitName := filepath.Split(ins.cfg.UnitFilePath)
	if err := fsutil.WriteFileAtomic(unitDir, unitName, []byte(GenerateUnitFile(ins.cfg)), 0o644); err != nil {
		return fmt.Errorf("packaging: write unit file: %w", err)
	}
	ins.logger.Info("unit file written", "path", ins.cfg.UnitFilePath)

	// 8. Daemon reload
	if err := ins.systemd.DaemonReload(); err != nil {
		return fmt.Errorf("packaging: daemon-reload: %w", err)
	}
	ins.logger.Info("systemd daemon reloaded")

	if ins.cfg.NoEnable {
		ins.logger.Info("service not enabled", "service", ins.cfg.ServiceName)
		return nil
	}

	// 9. Enable and start
	if err := ins.systemd.Enable(ins.cfg.ServiceName); err != nil {
		return fmt.Errorf("packaging: enable: %w", err)
	}
	if err := ins.systemd.Start(ins.cfg.ServiceName); err != nil {
		return fmt.Errorf("packaging: start: %w", err)
	}
	ins.logger.Info("service enabled and started", "service", ins.cfg.ServiceName)

	return nil
}

// Uninstall removes the service. If purge is true, data and config dirs are
// also removed. Firewall rules are left in place.
func (ins *Installer) Uninstall(purge bool) error {
	// 1. Check root
	if !ins.root.IsRoot() {
		return errors.New("packaging: uninstall requires root privileges")
	}

	// 2. Check if installed (unit file exists)
	if _, err := os.Stat(ins.cfg.UnitFilePath); errors.Is(err, os.ErrNotExist) {
		ins.logger.Info("service is not installed, nothing to do")
		return nil
	}

	// 3. Stop and disable; either may fail if the service never ran.
	if err := ins.systemd.Stop(ins.cfg.ServiceName); err != nil {
		ins.logger.Info("stop service", "error", err)
	}
	if err := ins.systemd.Disable(ins.cfg.ServiceName); err != nil {
		ins.logger.Info("disable service", "error", err)
	}

	// 4. Remove unit file
	if err := os.Remove(ins.cfg.UnitFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("packaging: remove unit file: %w", err)
	}
	ins.logger.Info("unit file removed", "path", ins.cfg.UnitFilePath)

	// 5. Daemon reload
	if err := ins.systemd.DaemonReload(); err != nil {
		return fmt.Errorf("packaging: daemon-reload: %w", err)
	}

	// 6. Remove binary
	if err := os.Remove(ins.cfg.BinaryPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("packaging: remove binary: %w", err)
	}
	ins.logger.Info("binary removed", "path", ins.cfg.BinaryPath)

	// 7. Purge directories if requested
	if purge {
		for _, dir := range []string{ins.cfg.DataDir, ins.cfg.ConfigDir} {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("packaging: remove directory %s: %w", dir, err)
			}
			ins.logger.Info("directory removed", "path", dir)
		}
	}

	return nil
}

func (ins *Installer) copyBinary() error {
	srcPath, err := ins.executable()
	if err != nil {
		return fmt.Errorf("packaging: resolve executable path: %w", err)
	}

	srcPath, err = filepath.EvalSymlinks(srcPath)
	if err != nil {
		return fmt.Errorf("packaging: resolve symlinks: %w", err)
	}

	dstPath := ins.cfg.BinaryPath
	if srcPath == dstPath {
		ins.logger.Info("binary already at install path, skipping copy", "path", dstPath)
		return nil
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("packaging: open source binary: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("packaging: read source binary: %w", err)
	}

	// Atomic replace so a running daemon keeps its old inode.
	dir, name := filepath.Split(dstPath)
	if err := fsutil.WriteFileAtomic(dir, name, data, 0o755); err != nil {
		return fmt.Errorf("packaging: install binary: %w", err)
	}

	sum := integrity.HashBytes(data)
	if err := integrity.VerifyFile(dstPath, sum); err != nil {
		return fmt.Errorf("packaging: verify installed binary: %w", err)
	}

	ins.logger.Info("binary installed", "src", srcPath, "dst", dstPath, "sha256", sum)
	return nil
}

// writeEnvFile merges CLOUDFLARE_API_KEY into the environment file, keeping
// any other variables already there.
func (ins *Installer) writeEnvFile() error {
	key := strings.TrimSpace(ins.cfg.APIKey)
	if key == "" {
		return nil
	}

	envPath := filepath.Join(ins.cfg.ConfigDir, EnvFileName)
	env, err := godotenv.Read(envPath)
	if errors.Is(err, os.ErrNotExist) {
		env = map[string]string{}
	} else if err != nil {
		return fmt.Errorf("packaging: read environment file: %w", err)
	}
	env[APIKeyEnv] = key

	content, err := godotenv.Marshal(env)
	if err != nil {
		return fmt.Errorf("packaging: encode environment file: %w", err)
	}
	if err := fsutil.WriteFileAtomic(ins.cfg.ConfigDir, EnvFileName, []byte(content+"\n"), 0o600); err != nil {
		return fmt.Errorf("packaging: write environment file: %w", err)
	}
	ins.logger.Info("api key written", "path", envPath)
	return nil
}

func validateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if len(key) > maxAPIKeyLength {
		return fmt.Errorf("packaging: api key exceeds maximum length of %d bytes", maxAPIKeyLength)
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x20 || key[i] > 0x7E {
			return errors.New("packaging: api key contains non-printable characters")
		}
	}
	return nil
}
