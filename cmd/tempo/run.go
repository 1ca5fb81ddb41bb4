package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tempo-agent/tempo/internal/engine"
	"github.com/tempo-agent/tempo/internal/formatter"
)

var runDry bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one decision cycle",
	Long: `Run a single pipeline pass: snapshot the calendar, score events,
detect conflicts, evaluate rules and policies, and persist the
resulting proposals.

A manual run ignores the daemon kill switch.

Examples:
  tempo run
  tempo run --dry-run
  tempo run -o json`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDry, "dry-run", false, "Compute the plan without persisting or notifying")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sum, err := a.engine.Cycle(cmd.Context(), engine.Options{DryRun: runDry, Force: true})
	if err != nil {
		return err
	}
	if jsonOutput() {
		return formatter.WriteJSON(os.Stdout, sum)
	}
	formatter.WriteCycleSummary(os.Stdout, sum)
	return nil
}
