package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tempo-agent/tempo/internal/types"
)

var (
	editStart string
	editEnd   string
)

var editCmd = &cobra.Command{
	Use:   "edit <action-id>",
	Short: "Adjust a proposal's time window, then approve it",
	Long: `Move a proposed action to a different slot. Editing implies
consent: the action is confirmed and applied in the same step.

Times accept RFC 3339 or "2006-01-02 15:04" in local time.

Examples:
  tempo edit 7c9e6679 --start "2026-09-02 08:00" --end "2026-09-02 08:45"`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

func init() {
	editCmd.Flags().StringVar(&editStart, "start", "", "New start time (required)")
	editCmd.Flags().StringVar(&editEnd, "end", "", "New end time (required)")
	editCmd.MarkFlagRequired("start")
	editCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(editCmd)
}

func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q (want RFC 3339 or \"2006-01-02 15:04\")", s)
	}
	return t, nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveActionID(a, args[0])
	if err != nil {
		return err
	}
	start, err := parseWhen(editStart)
	if err != nil {
		return err
	}
	end, err := parseWhen(editEnd)
	if err != nil {
		return err
	}

	gate := a.engine.Gate()
	if err := gate.Edit(id, start, end); err != nil {
		return err
	}
	observeDecision(a, id, true)

	applied, err := gate.ApplyConfirmed(cmd.Context(), time.Now())
	if err != nil && err != types.ErrNoActionsCalendar {
		return err
	}
	fmt.Printf("edited and confirmed %s (%d applied)\n", id, applied)
	return nil
}
