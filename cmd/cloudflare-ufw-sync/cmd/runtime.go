package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cloudflare"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/config"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/reconcile"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/syncstatus"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/ufw"
)

// newController builds the firewall port; replaced in tests.
var newController = func(cfg ufw.Config, logger *slog.Logger) ufw.Controller {
	return ufw.NewCLI(cfg, ufw.NewExecRunner(), logger)
}

// runtime bundles what every command needs after config loading.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	close  func()
}

// loadRuntime parses the config and builds the logger, honouring the
// --log-level and --verbose overrides.
func loadRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	if verbose {
		level = "debug"
	}

	var w io.Writer = cmd.ErrOrStderr()
	closeFn := func() {}
	if cfg.Logging.File != "" {
		f, err := openLogFile(cfg.Logging.File)
		if err != nil {
			return nil, err
		}
		w = io.MultiWriter(w, f)
		closeFn = func() { f.Close() }
	}

	logger := setupLogger(w, level)
	if cfg.Source != "" {
		logger.Debug("config loaded", "path", cfg.Source)
	} else {
		logger.Debug("no config file found, using defaults", "searched", strings.Join(config.SearchPaths(), ", "))
	}
	return &runtime{cfg: cfg, logger: logger, close: closeFn}, nil
}

// newLoop wires the Cloudflare source, ufw controller, and reconciler.
func (rt *runtime) newLoop() (*reconcile.Loop, error) {
	cfCfg := rt.cfg.CloudflareConfig()
	client, err := cloudflare.NewClient(cfCfg, buildVersion, rt.logger)
	if err != nil {
		return nil, err
	}
	families, err := rt.cfg.Families()
	if err != nil {
		return nil, err
	}
	source := cloudflare.NewSource(client, families, rt.logger)

	fwCfg := rt.cfg.UFWConfig()
	reconciler := reconcile.NewReconciler(newController(fwCfg, rt.logger), fwCfg, rt.logger)

	loop := reconcile.NewLoop(source, reconciler, rt.cfg.ReconcileConfig(), rt.logger)
	loop.AddRecorder(syncstatus.NewStore(rt.cfg.DataDir, rt.logger))
	return loop, nil
}

func setupLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
