package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/tempo-agent/tempo/internal/scoring"
	"github.com/tempo-agent/tempo/internal/types"
)

var now = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

func TestParseSuppression(t *testing.T) {
	r, err := Parse("Never bother me about standups", now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !r.Effect.Suppress {
		t.Error("expected a suppression effect")
	}
	if r.Condition.TitleContains != "standup" {
		t.Errorf("title_contains = %q, want standup", r.Condition.TitleContains)
	}
	if r.Confidence != InitialConfidence {
		t.Errorf("confidence = %v, want %v", r.Confidence, InitialConfidence)
	}
}

func TestParsePrepLead(t *testing.T) {
	r, err := Parse("Always prep me 2 days before anything with the word board", now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Condition.TitleContains != "board" {
		t.Errorf("title_contains = %q", r.Condition.TitleContains)
	}
	if r.Effect.PrepLead != 48*time.Hour {
		t.Errorf("prep lead = %s, want 48h", r.Effect.PrepLead)
	}
	if r.Effect.SetScore == nil || *r.Effect.SetScore != 0.9 {
		t.Error("expected score override of 0.9")
	}
}

func TestParseWeekendSuppression(t *testing.T) {
	r, err := Parse("Suppress all events on weekends", now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(r.Condition.DaysOfWeek) != 2 || !r.Effect.Suppress {
		t.Errorf("rule = %+v", r)
	}
}

func TestParseScoreAdjustments(t *testing.T) {
	boost, err := Parse("Boost score for investor", now)
	if err != nil {
		t.Fatalf("Parse boost: %v", err)
	}
	if boost.Effect.AddScore <= 0 {
		t.Errorf("boost add_score = %v", boost.Effect.AddScore)
	}
	lower, err := Parse("Lower priority for standups", now)
	if err != nil {
		t.Fatalf("Parse lower: %v", err)
	}
	if lower.Effect.AddScore >= 0 {
		t.Errorf("lower add_score = %v", lower.Effect.AddScore)
	}
}

func TestParseEveryN(t *testing.T) {
	r, err := Parse("Only check in every 4 occurrences of standup", now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Effect.EveryN != 4 || !r.Condition.RecurringOnly {
		t.Errorf("rule = %+v", r)
	}
}

func TestParseFailureIsUnparsed(t *testing.T) {
	_, err := Parse("make my calendar nicer somehow", now)
	if !errors.Is(err, types.ErrUnparsed) {
		t.Errorf("err = %v, want ErrUnparsed", err)
	}
	if len(Suggestions) == 0 {
		t.Error("suggestions should be available for the caller")
	}
}

func scored(uid, title string, start time.Time, score float64) scoring.Scored {
	return scoring.Scored{
		Event: types.CalendarEvent{UID: uid, Title: title, Start: start, End: start.Add(time.Hour)},
		Score: score,
	}
}

func TestEvaluateSuppresses(t *testing.T) {
	r, _ := Parse("Never bother me about standups", now)
	r.ID = 1
	verdicts := Evaluate([]scoring.Scored{
		scored("s1", "Daily Standup", now.Add(2*time.Hour), 0.6),
		scored("b1", "Board Review", now.Add(4*time.Hour), 0.9),
	}, []Rule{r})
	if !verdicts[0].Suppressed || verdicts[0].RuleID != 1 {
		t.Errorf("standup verdict = %+v", verdicts[0])
	}
	if verdicts[1].Suppressed || verdicts[1].Score != 0.9 {
		t.Errorf("unmatched event verdict = %+v", verdicts[1])
	}
}

func TestEvaluateConfidenceWins(t *testing.T) {
	suppress, _ := Parse("Never bother me about standups", now.Add(-time.Hour))
	suppress.ID = 1
	suppress.Confidence = 0.3
	boost, _ := Parse("Boost score for standup", now)
	boost.ID = 2
	boost.Confidence = 0.7

	verdicts := Evaluate([]scoring.Scored{
		scored("s1", "Standup", now.Add(2*time.Hour), 0.5),
	}, []Rule{suppress, boost})
	if verdicts[0].Suppressed {
		t.Error("lower-confidence suppression beat the boost")
	}
	if verdicts[0].RuleID != 2 {
		t.Errorf("winning rule = %d, want 2", verdicts[0].RuleID)
	}
}

func TestEvaluateRecencyBreaksTies(t *testing.T) {
	older, _ := Parse("Boost score for standup", now.Add(-24*time.Hour))
	older.ID = 1
	newer, _ := Parse("Never bother me about standups", now)
	newer.ID = 2

	verdicts := Evaluate([]scoring.Scored{
		scored("s1", "Standup", now.Add(2*time.Hour), 0.5),
	}, []Rule{older, newer})
	if verdicts[0].RuleID != 2 {
		t.Errorf("newest rule should win ties, got rule %d", verdicts[0].RuleID)
	}
}

func TestInactiveRulesIgnored(t *testing.T) {
	r, _ := Parse("Never bother me about standups", now)
	r.ID = 1
	r.Active = false
	verdicts := Evaluate([]scoring.Scored{
		scored("s1", "Standup", now.Add(2*time.Hour), 0.5),
	}, []Rule{r})
	if verdicts[0].Suppressed {
		t.Error("inactive rule should not apply")
	}
}
