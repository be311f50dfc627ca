package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/packaging"
)

var purge bool

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the cloudflare-ufw-sync systemd service",
	Long:  "Stop, disable, and remove the service. Firewall rules are left in place.",
	RunE:  runUninstall,
}

func init() {
	uninstallCmd.Flags().BoolVar(&purge, "purge", false, "also remove data and config directories")
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(cmd.ErrOrStderr(), logLevel)

	installer := packaging.NewInstaller(packaging.InstallConfig{}, packaging.NewSystemdController(), packaging.NewRootChecker(), logger)

	if err := installer.Uninstall(purge); err != nil {
		return fmt.Errorf("cloudflare-ufw-sync uninstall: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "cloudflare-ufw-sync uninstalled successfully")
	return nil
}
