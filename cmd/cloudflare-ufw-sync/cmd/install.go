package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/packaging"
)

var (
	installAPIKey   string
	installNoEnable bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install cloudflare-ufw-sync as a systemd service",
	RunE:  runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installAPIKey, "api-key", "", "Cloudflare API key written to the service environment file")
	installCmd.Flags().BoolVar(&installNoEnable, "no-enable", false, "install without enabling or starting the service")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(cmd.ErrOrStderr(), logLevel)

	cfg := packaging.InstallConfig{
		APIKey:   installAPIKey,
		NoEnable: installNoEnable,
	}

	installer := packaging.NewInstaller(cfg, packaging.NewSystemdController(), packaging.NewRootChecker(), logger)

	if err := installer.Install(); err != nil {
		return fmt.Errorf("cloudflare-ufw-sync install: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "cloudflare-ufw-sync installed successfully")
	return nil
}
