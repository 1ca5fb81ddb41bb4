package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tempo-agent/tempo/internal/types"
)

var (
	outcomeSentiment string
	outcomeEnergy    float64
	outcomeNote      string
	outcomePrepMins  int
	outcomeTitle     string
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome <event-uid>",
	Short: "Report how an event actually went",
	Long: `Record feedback about a past event. Outcomes feed the learner:
scorer weights drift toward what actually helped, and reported prep
minutes calibrate future prep block durations for that event kind.

Pass --title so same-named events share history; without it the
feedback keys on the bare uid.

Examples:
  tempo outcome ev-42 --sentiment good --prep-minutes 45 --title "Board Presentation"
  tempo outcome ev-43 --sentiment bad --energy -0.6 --note "ran long, no break"`,
	Args: cobra.ExactArgs(1),
	RunE: runOutcome,
}

func init() {
	outcomeCmd.Flags().StringVar(&outcomeSentiment, "sentiment", "neutral", "good, neutral, or bad")
	outcomeCmd.Flags().Float64Var(&outcomeEnergy, "energy", 0, "Energy level afterwards, -1 to 1")
	outcomeCmd.Flags().StringVar(&outcomeNote, "note", "", "Free-text note")
	outcomeCmd.Flags().IntVar(&outcomePrepMins, "prep-minutes", 0, "Minutes actually spent preparing")
	outcomeCmd.Flags().StringVar(&outcomeTitle, "title", "", "Event title, for grouping history by kind")
	rootCmd.AddCommand(outcomeCmd)
}

func runOutcome(cmd *cobra.Command, args []string) error {
	switch outcomeSentiment {
	case "good", "neutral", "bad":
	default:
		return fmt.Errorf("sentiment must be good, neutral, or bad, got %q", outcomeSentiment)
	}
	if outcomeEnergy < -1 || outcomeEnergy > 1 {
		return fmt.Errorf("energy must be in [-1,1], got %v", outcomeEnergy)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now()
	rec := types.OutcomeRecord{
		EventUID:    args[0],
		Sentiment:   outcomeSentiment,
		EnergyScore: outcomeEnergy,
		Note:        outcomeNote,
		PrepMinutes: outcomePrepMins,
		ObservedAt:  now,
	}
	kind := types.EventKind(types.CalendarEvent{UID: args[0], Title: outcomeTitle})
	if err := a.mem.RecordOutcome(rec, kind); err != nil {
		return err
	}
	if err := a.engine.Learner().ObserveOutcome(rec, outcomePrepMins > 0, now); err != nil {
		return err
	}
	fmt.Printf("recorded %s outcome for %s\n", outcomeSentiment, kind)
	return nil
}
