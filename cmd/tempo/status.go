package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tempo-agent/tempo/internal/formatter"
	"github.com/tempo-agent/tempo/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending actions and agent state",
	Long: `Display current agent state: autonomy level, kill switch, open
actions awaiting approval or apply, and today's nudge budget.

Examples:
  tempo status
  tempo status -o json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	BaseDir       string         `json:"base_dir"`
	DaemonEnabled bool           `json:"daemon_enabled"`
	Autonomy      string         `json:"autonomy"`
	NudgesToday   int            `json:"nudges_today"`
	NudgeBudget   int            `json:"nudge_budget"`
	OpenActions   []types.Action `json:"open_actions"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	open, err := a.links.ListOpenActions()
	if err != nil {
		return err
	}
	nudges, err := a.links.NudgesOn(time.Now())
	if err != nil {
		return err
	}

	st := statusOutput{
		BaseDir:       a.cfg.BaseDir,
		DaemonEnabled: a.cfg.DaemonEnabled,
		Autonomy:      string(a.cfg.AutonomyLevel()),
		NudgesToday:   nudges,
		NudgeBudget:   a.cfg.MaxNudgesPerDay,
		OpenActions:   open,
	}
	if jsonOutput() {
		return formatter.WriteJSON(os.Stdout, st)
	}

	fmt.Printf("base dir:  %s\n", st.BaseDir)
	fmt.Printf("daemon:    %v\n", st.DaemonEnabled)
	fmt.Printf("autonomy:  %s\n", st.Autonomy)
	fmt.Printf("nudges:    %d/%d today\n\n", st.NudgesToday, st.NudgeBudget)
	if len(open) == 0 {
		fmt.Println("no open actions")
		return nil
	}
	return formatter.WriteActions(os.Stdout, open)
}
