package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tempo-agent/tempo/internal/calendar"
	"github.com/tempo-agent/tempo/internal/config"
	"github.com/tempo-agent/tempo/internal/engine"
	"github.com/tempo-agent/tempo/internal/linkstore"
	"github.com/tempo-agent/tempo/internal/memstore"
	"github.com/tempo-agent/tempo/internal/notify"
	"github.com/tempo-agent/tempo/internal/rules"
	"github.com/tempo-agent/tempo/internal/types"
)

var testNow = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

func testApp(t *testing.T) *app {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	cfg.ActionsCalendarID = "actions"

	links, err := linkstore.Open(cfg.LinksDBPath(), log)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { links.Close() })
	mem, err := memstore.Open(cfg.MemoryDBPath(), log)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mem.Close() })

	adapter, err := calendar.NewFileAdapter(cfg.CalendarFilePath())
	if err != nil {
		t.Fatal(err)
	}
	router := notify.NewRouter([]notify.Channel{notify.NewLogChannel(log)}, "system", nil, log)
	eng := engine.New(cfg, calendar.NewGuarded(adapter, cfg.ActionsCalendarID),
		links, mem, router, log)
	return &app{cfg: cfg, links: links, mem: mem, engine: eng, log: log}
}

// ruleAction stores a rule and one action it generated, in the given
// state, and returns the action and the rule's initial confidence.
func ruleAction(t *testing.T, a *app, state types.ActionState) (types.Action, float64) {
	t.Helper()
	r, err := rules.Parse("Never bother me about standups", testNow)
	if err != nil {
		t.Fatal(err)
	}
	ruleID, err := a.mem.SaveRule(r)
	if err != nil {
		t.Fatal(err)
	}
	act := types.Action{
		ID:             uuid.NewString(),
		Type:           types.ActionPrep,
		SourceEventUID: "ev-standup",
		State:          state,
		Title:          "Prep: Standup",
		Start:          testNow.Add(2 * time.Hour),
		End:            testNow.Add(3 * time.Hour),
		Origin:         types.OriginRule,
		OriginID:       ruleID,
		Signature:      types.Signature("standup", types.ActionPrep),
		CreatedAt:      testNow,
		ExpiresAt:      testNow.Add(24 * time.Hour),
	}
	if err := a.links.CreateAction(act); err != nil {
		t.Fatal(err)
	}
	return act, r.Confidence
}

func ruleConfidence(t *testing.T, a *app) float64 {
	t.Helper()
	active, err := a.mem.ActiveRules()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("got %d active rules, want 1", len(active))
	}
	return active[0].Confidence
}

func TestRejectFeedsRuleConfidenceDown(t *testing.T) {
	a := testApp(t)
	act, initial := ruleAction(t, a, types.StateProposed)

	if _, err := rejectAction(a, act.ID, testNow); err != nil {
		t.Fatalf("rejectAction: %v", err)
	}
	if got := ruleConfidence(t, a); got >= initial {
		t.Errorf("confidence = %v after rejection, want below %v", got, initial)
	}
}

func TestRefusedRejectionLeavesConfidenceAlone(t *testing.T) {
	a := testApp(t)
	act, initial := ruleAction(t, a, types.StateRejected)

	if _, err := rejectAction(a, act.ID, testNow); err == nil {
		t.Fatal("rejecting a terminal action should fail")
	}
	if got := ruleConfidence(t, a); got != initial {
		t.Errorf("confidence = %v after a refused rejection, want unchanged %v", got, initial)
	}
}
