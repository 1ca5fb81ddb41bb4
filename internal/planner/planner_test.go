package planner

import (
	"testing"
	"time"

	"github.com/tempo-agent/tempo/internal/config"
	"github.com/tempo-agent/tempo/internal/policy"
	"github.com/tempo-agent/tempo/internal/rules"
	"github.com/tempo-agent/tempo/internal/scoring"
	"github.com/tempo-agent/tempo/internal/types"
)

var now = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC) // Tuesday

type fakePrepHistory map[string]int

func (f fakePrepHistory) AvgPrepMinutes(kind string) (int, bool) {
	m, ok := f[kind]
	return m, ok
}

func verdict(uid, title string, start time.Time, score float64) rules.Verdict {
	ev := types.CalendarEvent{UID: uid, Title: title, Start: start, End: start.Add(time.Hour)}
	return rules.Verdict{Scored: scoring.Scored{Event: ev, Score: score}, Score: score}
}

func build(t *testing.T, in Inputs) Plan {
	t.Helper()
	if in.Now.IsZero() {
		in.Now = now
	}
	return New(config.Default()).Build(in)
}

func TestHighScoreEventGetsPrepProposal(t *testing.T) {
	start := now.Add(20 * time.Hour)
	plan := build(t, Inputs{
		Verdicts: []rules.Verdict{verdict("board-1", "Board Presentation", start, 0.92)},
	})
	if len(plan.Proposals) != 2 {
		t.Fatalf("got %d proposals, want prep plus buffer", len(plan.Proposals))
	}
	byType := make(map[types.ActionType]types.Action)
	for _, a := range plan.Proposals {
		if a.SourceEventUID != "board-1" {
			t.Errorf("action = %+v", a)
		}
		if a.State != types.StateProposed {
			t.Errorf("state = %s, want proposed", a.State)
		}
		byType[a.Type] = a
	}

	// Prep ends 10 minutes before the event, runs 30 minutes by default.
	prep, ok := byType[types.ActionPrep]
	if !ok {
		t.Fatal("no prep proposal")
	}
	wantEnd := start.Add(-10 * time.Minute)
	if !prep.End.Equal(wantEnd) {
		t.Errorf("prep end = %s, want %s", prep.End, wantEnd)
	}
	if prep.End.Sub(prep.Start) != 30*time.Minute {
		t.Errorf("prep duration = %s, want 30m", prep.End.Sub(prep.Start))
	}

	// The settling buffer fills the gap between prep and the event.
	buf, ok := byType[types.ActionBuffer]
	if !ok {
		t.Fatal("no buffer proposal")
	}
	if !buf.Start.Equal(wantEnd) || !buf.End.Equal(start) {
		t.Errorf("buffer = %s-%s, want %s-%s", buf.Start, buf.End, wantEnd, start)
	}
}

func TestPrepDurationUsesHistory(t *testing.T) {
	start := now.Add(20 * time.Hour)
	plan := build(t, Inputs{
		Verdicts:    []rules.Verdict{verdict("board-1", "Board Presentation", start, 0.92)},
		PrepHistory: fakePrepHistory{"board-presentation": 45},
	})
	var prep *types.Action
	for i, a := range plan.Proposals {
		if a.Type == types.ActionPrep {
			prep = &plan.Proposals[i]
		}
	}
	if prep == nil {
		t.Fatal("no prep proposal")
	}
	if d := prep.End.Sub(prep.Start); d != 45*time.Minute {
		t.Errorf("prep duration = %s, want 45m from history", d)
	}
}

func TestLowScoreEventGetsNothing(t *testing.T) {
	plan := build(t, Inputs{
		Verdicts: []rules.Verdict{verdict("lunch", "Lunch", now.Add(4*time.Hour), 0.3)},
	})
	if len(plan.Proposals) != 0 {
		t.Errorf("low-score event produced proposals: %+v", plan.Proposals)
	}
}

func TestBackToBackRunGetsBuffersAndReset(t *testing.T) {
	starts := []time.Time{now.Add(time.Hour), now.Add(2 * time.Hour), now.Add(3 * time.Hour)}
	verdicts := []rules.Verdict{
		verdict("a", "Sync A", starts[0], 0.4),
		verdict("b", "Sync B", starts[1], 0.4),
		verdict("c", "Sync C", starts[2], 0.4),
	}
	finding := types.Finding{
		Kind:      types.FindingBackToBack,
		EventUIDs: []string{"a", "b", "c"},
		Severity:  0.5,
		Day:       "2026-09-01",
	}
	plan := build(t, Inputs{Verdicts: verdicts, Findings: []types.Finding{finding}})

	var buffers, resets int
	for _, a := range plan.Proposals {
		switch a.Type {
		case types.ActionBuffer:
			buffers++
		case types.ActionFollowup:
			resets++
			if a.SourceEventUID != "b" {
				t.Errorf("reset attached to %s, want the middle event", a.SourceEventUID)
			}
			if d := a.End.Sub(a.Start); d != 25*time.Minute {
				t.Errorf("reset duration = %s, want 25m", d)
			}
		}
	}
	if buffers != 3 {
		t.Errorf("got %d buffers, want one per run event", buffers)
	}
	if resets != 1 {
		t.Errorf("got %d resets, want 1", resets)
	}
}

func TestOverlapProposesReschedulingLowerScoredEvent(t *testing.T) {
	verdicts := []rules.Verdict{
		verdict("big", "Board Review", now.Add(2*time.Hour), 0.9),
		verdict("small", "Catch-up", now.Add(2*time.Hour+30*time.Minute), 0.3),
	}
	finding := types.Finding{
		Kind:      types.FindingOverlap,
		EventUIDs: []string{"big", "small"},
		Severity:  0.5,
		Day:       "2026-09-01",
	}
	plan := build(t, Inputs{Verdicts: verdicts, Findings: []types.Finding{finding}})

	var resched *types.Action
	for i, a := range plan.Proposals {
		if a.Type == types.ActionReschedule {
			resched = &plan.Proposals[i]
		}
	}
	if resched == nil {
		t.Fatal("no reschedule proposal")
	}
	if resched.SourceEventUID != "small" {
		t.Errorf("reschedule targets %s, want the lower-scored event", resched.SourceEventUID)
	}
}

func TestOverloadedDayProposesReschedulingLeastImportant(t *testing.T) {
	verdicts := []rules.Verdict{
		verdict("big", "Board Review", now.Add(2*time.Hour), 0.7),
		verdict("mid", "Planning", now.Add(4*time.Hour), 0.5),
		verdict("small", "Catch-up", now.Add(6*time.Hour), 0.2),
	}
	finding := types.Finding{
		Kind:      types.FindingOverloadedDay,
		EventUIDs: []string{"big", "mid", "small"},
		Severity:  0.6,
		Day:       "2026-09-01",
	}
	plan := build(t, Inputs{Verdicts: verdicts, Findings: []types.Finding{finding}})

	var resched []types.Action
	for _, a := range plan.Proposals {
		if a.Type == types.ActionReschedule {
			resched = append(resched, a)
		}
	}
	if len(resched) != 1 {
		t.Fatalf("got %d reschedule proposals, want 1", len(resched))
	}
	if resched[0].SourceEventUID != "small" {
		t.Errorf("reschedule targets %s, want the lowest-scored event", resched[0].SourceEventUID)
	}
	if resched[0].Origin != types.OriginConflict {
		t.Errorf("origin = %s, want conflict", resched[0].Origin)
	}
}

func TestSuppressionDropsCandidates(t *testing.T) {
	start := now.Add(20 * time.Hour)
	sig := types.Signature("board-presentation", types.ActionPrep)
	plan := build(t, Inputs{
		Verdicts:             []rules.Verdict{verdict("board-1", "Board Presentation", start, 0.92)},
		SuppressedSignatures: map[string]bool{sig: true},
	})
	for _, a := range plan.Proposals {
		if a.Type == types.ActionPrep {
			t.Errorf("suppressed prep still proposed: %+v", a)
		}
	}
	if plan.DroppedSuppressed != 1 {
		t.Errorf("DroppedSuppressed = %d, want 1", plan.DroppedSuppressed)
	}
}

func TestOpenSignatureIsIdempotent(t *testing.T) {
	start := now.Add(20 * time.Hour)
	in := Inputs{
		Verdicts: []rules.Verdict{verdict("board-1", "Board Presentation", start, 0.92)},
	}
	first := build(t, in)
	if len(first.Proposals) == 0 {
		t.Fatal("first pass proposed nothing")
	}
	in.OpenSignatures = make(map[string]bool)
	for _, a := range first.Proposals {
		in.OpenSignatures[a.Signature] = true
	}
	second := build(t, in)
	if len(second.Proposals) != 0 {
		t.Errorf("second pass re-proposed: %+v", second.Proposals)
	}
}

func TestNudgeBudgetCapsProposals(t *testing.T) {
	var verdicts []rules.Verdict
	for i := 0; i < 20; i++ {
		start := now.Add(time.Duration(20+i) * time.Hour)
		verdicts = append(verdicts, verdict(
			string(rune('a'+i)), "Investor Sync "+string(rune('a'+i)), start, 0.8))
	}
	plan := build(t, Inputs{Verdicts: verdicts, NudgesUsedToday: 10})
	if len(plan.Proposals) != 2 {
		t.Errorf("got %d proposals, want 2 (12 cap - 10 used)", len(plan.Proposals))
	}
	// 20 events yield a prep and a buffer each; all but two are cut.
	if plan.DroppedBudget != 38 {
		t.Errorf("DroppedBudget = %d, want 38", plan.DroppedBudget)
	}
}

func TestQuietHoursDefersDelivery(t *testing.T) {
	cfg := config.Default()
	cfg.QuietHours.Weekdays = "22:00-07:00"
	late := time.Date(2026, 9, 1, 23, 0, 0, 0, time.UTC)
	plan := New(cfg).Build(Inputs{
		Now:      late,
		Verdicts: []rules.Verdict{verdict("board-1", "Board Presentation", late.Add(12*time.Hour), 0.92)},
	})
	if !plan.DeferDelivery {
		t.Error("plan during quiet hours should defer delivery")
	}
	if len(plan.Proposals) == 0 {
		t.Error("quiet hours must not drop the proposals themselves")
	}
}

func TestAutonomousPolicyCandidateSkipsGate(t *testing.T) {
	ev := types.CalendarEvent{UID: "board-1", Title: "Board Presentation",
		Start: now.Add(20 * time.Hour), End: now.Add(21 * time.Hour)}
	plan := build(t, Inputs{
		PolicyCandidates: []policy.Candidate{{
			PolicyID:    3,
			Type:        types.ActionFollowup,
			SourceEvent: ev,
			Title:       "Debrief: Board Presentation",
			Start:       ev.End.Add(15 * time.Minute),
			End:         ev.End.Add(30 * time.Minute),
			Autonomous:  true,
			Confidence:  0.4,
		}},
	})
	if len(plan.Autonomous) != 1 {
		t.Fatalf("got %d autonomous actions, want 1", len(plan.Autonomous))
	}
	if plan.Autonomous[0].State != types.StateConfirmed {
		t.Errorf("autonomous action state = %s, want confirmed", plan.Autonomous[0].State)
	}
	if len(plan.Proposals) != 0 {
		t.Error("autonomous action should not appear among proposals")
	}
}

func TestDedupPrefersHigherScore(t *testing.T) {
	ev := types.CalendarEvent{UID: "board-1", Title: "Board Presentation",
		Start: now.Add(20 * time.Hour), End: now.Add(21 * time.Hour)}
	plan := build(t, Inputs{
		Verdicts: []rules.Verdict{verdict("board-1", "Board Presentation", ev.Start, 0.92)},
		PolicyCandidates: []policy.Candidate{{
			PolicyID:    1,
			Type:        types.ActionPrep,
			SourceEvent: ev,
			Title:       "Prep: Board Presentation",
			Start:       ev.Start.Add(-24 * time.Hour),
			End:         ev.Start.Add(-24*time.Hour + 30*time.Minute),
			Confidence:  0.4,
		}},
	})
	var preps []types.Action
	for _, a := range append(plan.Proposals, plan.Autonomous...) {
		if a.Type == types.ActionPrep {
			preps = append(preps, a)
		}
	}
	if len(preps) != 1 {
		t.Fatalf("got %d prep actions for one (event, type), want 1", len(preps))
	}
	if preps[0].Score != 0.92 {
		t.Errorf("dedup kept score %v, want the higher 0.92", preps[0].Score)
	}
}
