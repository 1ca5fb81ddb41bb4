package memstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tempo-agent/tempo/internal/policy"
	"github.com/tempo-agent/tempo/internal/rules"
	"github.com/tempo-agent/tempo/internal/types"
)

var now = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "memory.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOutcomesRoundTrip(t *testing.T) {
	s := openStore(t)
	o := types.OutcomeRecord{
		EventUID:    "ev-1",
		Sentiment:   "good",
		EnergyScore: 0.5,
		PrepMinutes: 45,
		ObservedAt:  now,
	}
	if err := s.RecordOutcome(o, "board-presentation"); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	got := s.Outcomes("board-presentation")
	if len(got) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(got))
	}
	if got[0].Sentiment != "good" || got[0].PrepMinutes != 45 {
		t.Errorf("outcome = %+v", got[0])
	}
	if len(s.Outcomes("standup")) != 0 {
		t.Error("kinds must not leak into each other")
	}
}

func TestPrepHistoryWeightsRecency(t *testing.T) {
	s := openStore(t)
	// Old long prep, recent short prep: the average should sit nearer
	// the recent value.
	old := types.OutcomeRecord{EventUID: "e1", Sentiment: "good",
		PrepMinutes: 90, ObservedAt: now.AddDate(0, 0, -180)}
	recent := types.OutcomeRecord{EventUID: "e2", Sentiment: "good",
		PrepMinutes: 30, ObservedAt: now.AddDate(0, 0, -1)}
	for _, o := range []types.OutcomeRecord{old, recent} {
		if err := s.RecordOutcome(o, "board"); err != nil {
			t.Fatal(err)
		}
	}
	avg, ok := s.PrepHistory(now, 90).AvgPrepMinutes("board")
	if !ok {
		t.Fatal("expected history")
	}
	if avg <= 30 || avg >= 60 {
		t.Errorf("avg = %d, want between 30 and the unweighted mean 60", avg)
	}
}

func TestPrepHistoryIgnoresUnreported(t *testing.T) {
	s := openStore(t)
	if err := s.RecordOutcome(types.OutcomeRecord{
		EventUID: "e1", Sentiment: "good", ObservedAt: now,
	}, "standup"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.PrepHistory(now, 90).AvgPrepMinutes("standup"); ok {
		t.Error("outcomes without prep minutes should not create history")
	}
}

func TestRulesRoundTrip(t *testing.T) {
	s := openStore(t)
	r, err := rules.Parse("Never bother me about standups", now)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.SaveRule(r)
	if err != nil {
		t.Fatalf("SaveRule: %v", err)
	}
	active, err := s.ActiveRules()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("got %d rules", len(active))
	}
	got := active[0]
	if got.ID != id || !got.Effect.Suppress || got.Condition.TitleContains != "standup" {
		t.Errorf("rule = %+v", got)
	}

	if err := s.SetRuleConfidence(id, 0.55); err != nil {
		t.Fatal(err)
	}
	active, _ = s.ActiveRules()
	if active[0].Confidence != 0.55 {
		t.Errorf("confidence = %v", active[0].Confidence)
	}

	if err := s.DeactivateRule(id); err != nil {
		t.Fatal(err)
	}
	active, _ = s.ActiveRules()
	if len(active) != 0 {
		t.Error("deactivated rule still listed")
	}
}

func TestUnparsedRuleStaysInert(t *testing.T) {
	s := openStore(t)
	if _, err := s.SaveUnparsedRule("reticulate my splines", now); err != nil {
		t.Fatal(err)
	}
	active, err := s.ActiveRules()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("unparsed rule showed up in active set: %+v", active)
	}
}

func TestPoliciesRoundTrip(t *testing.T) {
	s := openStore(t)
	p, err := policy.Parse("Always block prep time for high-stakes events", now)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.SavePolicy(p)
	if err != nil {
		t.Fatalf("SavePolicy: %v", err)
	}
	active, err := s.ActivePolicies()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("got %d policies", len(active))
	}
	got := active[0]
	if got.ID != id || got.Action != policy.ActionBlockPrep || !got.Condition.HighStakes {
		t.Errorf("policy = %+v", got)
	}
	if got.RequiredAutonomy != types.AutonomyAutonomous {
		t.Errorf("required autonomy = %s", got.RequiredAutonomy)
	}

	if err := s.MarkPolicyFired(id, now); err != nil {
		t.Fatal(err)
	}
	active, _ = s.ActivePolicies()
	if active[0].TimesFired != 1 {
		t.Errorf("times_fired = %d", active[0].TimesFired)
	}
}

func TestWeightsDefaultAndPersist(t *testing.T) {
	s := openStore(t)
	w, err := s.Weights()
	if err != nil {
		t.Fatal(err)
	}
	if w != types.DefaultWeights() {
		t.Errorf("empty store weights = %+v, want defaults", w)
	}

	w.Urgency = 0.75
	w.Version++
	w.UpdatedAt = now
	if err := s.SaveWeights(w); err != nil {
		t.Fatal(err)
	}
	got, err := s.Weights()
	if err != nil {
		t.Fatal(err)
	}
	if got.Urgency != 0.75 || got.Version != 2 {
		t.Errorf("weights = %+v", got)
	}
}

func TestChannelStats(t *testing.T) {
	s := openStore(t)
	st := types.ChannelStat{
		Channel: "push", EventType: "prep",
		ResponseLatencyEMA: 12, AcceptRateEMA: 0.8, Samples: 3,
	}
	if err := s.SaveChannelStat(st); err != nil {
		t.Fatal(err)
	}
	st.Samples = 4
	if err := s.SaveChannelStat(st); err != nil {
		t.Fatal(err)
	}
	got, err := s.ChannelStat("push", "prep")
	if err != nil {
		t.Fatal(err)
	}
	if got.Samples != 4 || got.AcceptRateEMA != 0.8 {
		t.Errorf("stat = %+v", got)
	}

	// Unknown pairs come back zero-valued, not as errors.
	empty, err := s.ChannelStat("email", "prep")
	if err != nil {
		t.Fatal(err)
	}
	if empty.Samples != 0 {
		t.Errorf("empty stat = %+v", empty)
	}
}
