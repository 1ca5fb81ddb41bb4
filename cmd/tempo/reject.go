package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var rejectCmd = &cobra.Command{
	Use:   "reject <action-id>",
	Short: "Decline a proposed action",
	Long: `Reject a proposal. Rejection cools down the whole action class:
rejecting one standup prep silences standup preps for the cooldown
window, not just this instance.

Examples:
  tempo reject 7c9e6679`,
	Args: cobra.ExactArgs(1),
	RunE: runReject,
}

func init() {
	rootCmd.AddCommand(rejectCmd)
}

func runReject(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := rejectAction(a, args[0], time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("rejected %s; its class is suppressed for %d days\n", id, a.cfg.ActionCleanupDays)
	return nil
}

// rejectAction runs the rejection transition and, only once it has
// succeeded, feeds the decision to the learner. A refused transition
// (already terminal, unknown id) must not move confidence.
func rejectAction(a *app, ref string, now time.Time) (string, error) {
	id, err := resolveActionID(a, ref)
	if err != nil {
		return "", err
	}
	if err := a.engine.Gate().Reject(id, now); err != nil {
		return "", err
	}
	observeDecision(a, id, false)
	return id, nil
}
