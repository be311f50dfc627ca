package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/reconcile"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle",
	Long: "Fetch the current Cloudflare ranges and reconcile ufw once.\n" +
		"Exits non-zero only when the ranges cannot be fetched or ufw is unusable;\n" +
		"individual rule failures are reported in the summary.",
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVarP(&syncForce, "force", "f", false, "sync even when sync.enabled is false")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return fmt.Errorf("cloudflare-ufw-sync sync: %w", err)
	}
	defer rt.close()

	if !rt.cfg.SyncEnabled() && !syncForce {
		fmt.Fprintln(cmd.OutOrStdout(), "Sync is disabled in the configuration; use --force to run anyway.")
		return nil
	}

	loop, err := rt.newLoop()
	if err != nil {
		return fmt.Errorf("cloudflare-ufw-sync sync: %w", err)
	}

	res, err := loop.RunOnce(cmd.Context())
	if err != nil {
		return fmt.Errorf("cloudflare-ufw-sync sync: %w", err)
	}

	printSummary(cmd.OutOrStdout(), res)
	return nil
}

func printSummary(w io.Writer, res reconcile.Result) {
	fmt.Fprintln(w, "Sync completed")
	fmt.Fprintf(w, "  Cloudflare ranges: %d %s, %d %s\n",
		res.Desired[cidr.FamilyV4], cidr.FamilyV4,
		res.Desired[cidr.FamilyV6], cidr.FamilyV6,
	)
	fmt.Fprintf(w, "  Rules added:       %d\n", res.Added)
	fmt.Fprintf(w, "  Rules removed:     %d\n", res.Removed)
	if res.AddFailed > 0 || res.RemoveFailed > 0 {
		fmt.Fprintf(w, "  Failures:          %d add, %d remove\n", res.AddFailed, res.RemoveFailed)
	}
	if res.StatusDegraded {
		fmt.Fprintln(w, "  Warning: ufw rules could not be listed; existing rules were assumed absent")
	}
	if res.PreconditionErr != nil {
		fmt.Fprintf(w, "  Warning: %v\n", res.PreconditionErr)
	}
}
