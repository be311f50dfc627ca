package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/metrics"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync loop until stopped",
	Long: "Run a sync immediately and then every sync.interval. SIGHUP triggers an\n" +
		"extra sync; SIGTERM and SIGINT stop the daemon after the running step.",
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return fmt.Errorf("cloudflare-ufw-sync daemon: %w", err)
	}
	defer rt.close()
	logger := rt.logger

	if !rt.cfg.SyncEnabled() {
		logger.Warn("sync is disabled in the configuration, daemon exiting")
		return nil
	}

	loop, err := rt.newLoop()
	if err != nil {
		return fmt.Errorf("cloudflare-ufw-sync daemon: %w", err)
	}

	mCfg := rt.cfg.MetricsConfig()
	var server *metrics.Server
	if mCfg.Enabled {
		reg := metrics.NewRegistry()
		loop.AddRecorder(reg)
		server = metrics.NewServer(mCfg, reg, logger)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	logger.Info("cloudflare-ufw-sync starting",
		"version", buildVersion,
		"config", rt.cfg.Source,
		"interval", rt.cfg.ReconcileConfig().Interval,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop.Run(gctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.Info("received SIGHUP, triggering sync")
				loop.TriggerSync()
			}
		}
	})

	if server != nil {
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("cloudflare-ufw-sync daemon: %w", err)
	}

	logger.Info("cloudflare-ufw-sync stopped")
	return nil
}
