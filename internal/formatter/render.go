package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tempo-agent/tempo/internal/types"
)

var (
	stateStyles = map[types.ActionState]lipgloss.Style{
		types.StateProposed:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		types.StateConfirmed: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		types.StateApplied:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		types.StateRejected:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		types.StateCanceled:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		types.StateExpired:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}

	severityHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	severityLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func styleState(s types.ActionState) string {
	if st, ok := stateStyles[s]; ok {
		return st.Render(string(s))
	}
	return string(s)
}

// WriteActions renders actions as a table.
func WriteActions(w io.Writer, actions []types.Action) error {
	t := NewTable(w, "ID", "TYPE", "STATE", "SCORE", "WHEN", "TITLE")
	t.SetMaxWidth(0, 8)
	t.SetMaxWidth(5, 48)
	for _, a := range actions {
		t.AddRow(
			a.ID,
			string(a.Type),
			styleState(a.State),
			fmt.Sprintf("%.2f", a.Score),
			fmt.Sprintf("%s %s-%s",
				a.Start.Format("Mon 02 Jan"),
				a.Start.Format("15:04"),
				a.End.Format("15:04")),
			a.Title,
		)
	}
	return t.Render()
}

// WriteFindings renders conflict findings as a table.
func WriteFindings(w io.Writer, findings []types.Finding) error {
	t := NewTable(w, "DAY", "KIND", "SEVERITY", "DETAIL")
	t.SetMaxWidth(3, 60)
	for _, f := range findings {
		sev := fmt.Sprintf("%.2f", f.Severity)
		if f.Severity >= 0.7 {
			sev = severityHigh.Render(sev)
		} else {
			sev = severityLow.Render(sev)
		}
		t.AddRow(f.Day, string(f.Kind), sev, f.Detail)
	}
	return t.Render()
}

// WriteJSON writes any value as indented JSON, for --output json.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// CycleSummary is the machine-readable report of one engine cycle.
type CycleSummary struct {
	StartedAt    time.Time `json:"started_at"`
	DryRun       bool      `json:"dry_run"`
	Skipped      bool      `json:"skipped,omitempty"`
	SkipReason   string    `json:"skip_reason,omitempty"`
	Events       int       `json:"events"`
	Findings     int       `json:"findings"`
	Proposed     int       `json:"proposed"`
	AutoApplied  int       `json:"auto_applied"`
	Applied      int       `json:"applied"`
	Expired      int       `json:"expired"`
	Deferred     bool      `json:"deferred,omitempty"`
	DroppedByCap int       `json:"dropped_by_cap,omitempty"`
	Suppressed   int       `json:"suppressed,omitempty"`

	// ConfigError reports a write-path misconfiguration, once per cycle.
	ConfigError string `json:"config_error,omitempty"`
}

// WriteCycleSummary renders a one-cycle report for the terminal.
func WriteCycleSummary(w io.Writer, s CycleSummary) {
	if s.Skipped {
		fmt.Fprintf(w, "cycle skipped: %s\n", s.SkipReason)
		if s.ConfigError != "" {
			fmt.Fprintf(w, "config error: %s\n", s.ConfigError)
		}
		return
	}
	mode := ""
	if s.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "cycle%s: %d events, %d findings, %d proposed, %d auto-applied, %d applied, %d expired\n",
		mode, s.Events, s.Findings, s.Proposed, s.AutoApplied, s.Applied, s.Expired)
	if s.Deferred {
		fmt.Fprintln(w, "quiet hours: notifications deferred")
	}
	if s.ConfigError != "" {
		fmt.Fprintf(w, "config error: %s\n", s.ConfigError)
	}
}
