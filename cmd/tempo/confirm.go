package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tempo-agent/tempo/internal/types"
)

var confirmCmd = &cobra.Command{
	Use:   "confirm <action-id>",
	Short: "Approve a proposed action",
	Long: `Confirm a proposed action and write it to the actions calendar.

Confirming also feeds acceptance back to the rule or policy that
produced the proposal.

Examples:
  tempo confirm 7c9e6679
  tempo status   # list pending action ids`,
	Args: cobra.ExactArgs(1),
	RunE: runConfirm,
}

func init() {
	rootCmd.AddCommand(confirmCmd)
}

func runConfirm(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveActionID(a, args[0])
	if err != nil {
		return err
	}
	gate := a.engine.Gate()
	if err := gate.Confirm(id); err != nil {
		return err
	}
	observeDecision(a, id, true)

	applied, err := gate.ApplyConfirmed(cmd.Context(), time.Now())
	if err != nil {
		if err == types.ErrNoActionsCalendar {
			fmt.Println("confirmed; set actions_calendar_id to enable calendar writes")
			return nil
		}
		return err
	}
	fmt.Printf("confirmed %s (%d applied)\n", id, applied)
	return nil
}

// resolveActionID accepts a unique prefix of an open action id, matching
// what status displays in its truncated id column.
func resolveActionID(a *app, prefix string) (string, error) {
	if _, err := a.links.GetAction(prefix); err == nil {
		return prefix, nil
	}
	open, err := a.links.ListOpenActions()
	if err != nil {
		return "", err
	}
	var match string
	for _, act := range open {
		if len(prefix) <= len(act.ID) && act.ID[:len(prefix)] == prefix {
			if match != "" {
				return "", fmt.Errorf("action id %q is ambiguous", prefix)
			}
			match = act.ID
		}
	}
	if match == "" {
		return "", types.ErrActionNotFound
	}
	return match, nil
}

// observeDecision routes a confirm/reject to the learner so rule and
// policy confidence track real decisions. Best effort.
func observeDecision(a *app, id string, accepted bool) {
	act, err := a.links.GetAction(id)
	if err != nil || act.OriginID == 0 {
		return
	}
	confidence, ok := originConfidence(a, act)
	if !ok {
		return
	}
	if err := a.engine.Learner().ObserveDecision(act, confidence, accepted); err != nil {
		a.log.Warn("decision feedback failed", "action", id, "err", err)
	}
}

func originConfidence(a *app, act types.Action) (float64, bool) {
	switch act.Origin {
	case types.OriginRule:
		rs, err := a.mem.ActiveRules()
		if err != nil {
			return 0, false
		}
		for _, r := range rs {
			if r.ID == act.OriginID {
				return r.Confidence, true
			}
		}
	case types.OriginPolicy:
		ps, err := a.mem.ActivePolicies()
		if err != nil {
			return 0, false
		}
		for _, p := range ps {
			if p.ID == act.OriginID {
				return p.Confidence, true
			}
		}
	}
	return 0, false
}
