package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/syncstatus"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/ufw"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show managed rules and the last sync result",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return fmt.Errorf("cloudflare-ufw-sync status: %w", err)
	}
	defer rt.close()

	out := cmd.OutOrStdout()
	fwCfg := rt.cfg.UFWConfig()
	fwCfg.ApplyDefaults()

	fmt.Fprintf(out, "Managed rules (%s/%d, comment %q):\n", fwCfg.Proto, fwCfg.Port, fwCfg.Comment)
	ctrl := newController(fwCfg, rt.logger)
	raw, err := ctrl.StatusNumbered(cmd.Context())
	if err != nil {
		fmt.Fprintf(out, "  unavailable: %v\n", err)
	} else {
		current := ufw.NewParser(fwCfg.Selector(), rt.logger).CurrentState(raw)
		for _, f := range cidr.Families {
			fmt.Fprintf(out, "  %-4s %d\n", f, len(current.Get(f)))
		}
	}

	rec, err := syncstatus.NewStore(rt.cfg.DataDir, rt.logger).Read()
	if err != nil {
		return fmt.Errorf("cloudflare-ufw-sync status: %w", err)
	}
	printLastSync(out, rec)
	return nil
}

func printLastSync(w io.Writer, rec *syncstatus.Record) {
	fmt.Fprintln(w, "Last sync:")
	if rec == nil {
		fmt.Fprintln(w, "  never")
		return
	}
	result := "success"
	if !rec.Success {
		result = "failed"
	}
	fmt.Fprintf(w, "  Time:     %s (%s)\n", rec.Time.Format(time.RFC3339), result)
	if rec.Error != "" {
		fmt.Fprintf(w, "  Error:    %s\n", rec.Error)
	}
	fmt.Fprintf(w, "  Ranges:   %d IPv4, %d IPv6\n", rec.IPs.V4, rec.IPs.V6)
	fmt.Fprintf(w, "  Rules:    %d added, %d removed\n", rec.Rules.Added, rec.Rules.Removed)
	if rec.Rules.AddFailed > 0 || rec.Rules.RemoveFailed > 0 {
		fmt.Fprintf(w, "  Failures: %d add, %d remove\n", rec.Rules.AddFailed, rec.Rules.RemoveFailed)
	}
	if !rec.Success && rec.LastSuccess != nil {
		fmt.Fprintf(w, "  Last successful sync: %s\n", rec.LastSuccess.Format(time.RFC3339))
	}
}
