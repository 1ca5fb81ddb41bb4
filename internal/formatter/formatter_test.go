package formatter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tempo-agent/tempo/internal/types"
)

var now = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

func TestTableAlignsAndTruncates(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, "ID", "TITLE")
	table.SetMaxWidth(1, 10)
	table.AddRow("a1", "a very long title that gets cut")
	if err := table.Render(); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "a very ...") {
		t.Errorf("output missing truncated cell:\n%s", out)
	}
	if !strings.Contains(out, "a1") {
		t.Errorf("output missing row value:\n%s", out)
	}
}

func TestTableHeaderOnlyWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, "ID", "STATE")
	if err := table.Render(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "ID") {
		t.Error("empty table should still render its header")
	}
}

func TestWriteActions(t *testing.T) {
	var buf bytes.Buffer
	err := WriteActions(&buf, []types.Action{{
		ID:    "abcd1234efgh",
		Type:  types.ActionPrep,
		State: types.StateProposed,
		Score: 0.92,
		Title: "Prep: Board Presentation",
		Start: now.Add(20 * time.Hour),
		End:   now.Add(20*time.Hour + 30*time.Minute),
	}})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"prep", "0.92", "Prep: Board Presentation"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Long ids truncate.
	if strings.Contains(out, "abcd1234efgh") {
		t.Error("id column should be truncated")
	}
}

func TestWriteJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	s := CycleSummary{StartedAt: now, Events: 5, Proposed: 2}
	if err := WriteJSON(&buf, s); err != nil {
		t.Fatal(err)
	}
	var got CycleSummary
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Events != 5 || got.Proposed != 2 {
		t.Errorf("round trip = %+v", got)
	}
}

func TestWriteCycleSummarySkipped(t *testing.T) {
	var buf bytes.Buffer
	WriteCycleSummary(&buf, CycleSummary{Skipped: true, SkipReason: "daemon disabled"})
	if !strings.Contains(buf.String(), "daemon disabled") {
		t.Errorf("output = %q", buf.String())
	}
}
