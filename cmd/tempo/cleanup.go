package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tempo-agent/tempo/internal/formatter"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Archive stale actions and lapsed cooldowns",
	Long: `Bound the working set: remove terminal actions older than
action_cleanup_days along with their link edges, and purge expired
suppressions. Open actions are never touched.

Examples:
  tempo cleanup
  tempo cleanup -o json`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.links.Cleanup(time.Now(), a.cfg.ActionCleanupDays)
	if err != nil {
		return err
	}
	if jsonOutput() {
		return formatter.WriteJSON(os.Stdout, stats)
	}
	fmt.Printf("archived %d actions, pruned %d links, purged %d suppressions\n",
		stats.ActionsArchived, stats.LinksPruned, stats.SuppressionsPurged)
	return nil
}
