// Package rules turns plain-English user instructions into structured
// scheduling rules and evaluates them against scored events. Parsing is
// a fixed pattern table, not a language model: a statement either
// matches a known shape or is rejected with phrasing suggestions.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tempo-agent/tempo/internal/scoring"
	"github.com/tempo-agent/tempo/internal/types"
)

// InitialConfidence is assigned to every freshly parsed rule. The
// learner raises or lowers it from outcome feedback.
const InitialConfidence = 0.4

// Condition selects the events a rule applies to. Zero-value fields
// match everything.
type Condition struct {
	// TitleContains matches case-insensitively against event titles.
	TitleContains string `json:"title_contains,omitempty"`

	// DaysOfWeek restricts the rule to events starting on these days.
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`

	// RecurringOnly restricts the rule to recurring-series instances.
	RecurringOnly bool `json:"recurring_only,omitempty"`
}

// Matches reports whether ev satisfies the condition.
func (c Condition) Matches(ev types.CalendarEvent) bool {
	if c.TitleContains != "" &&
		!strings.Contains(strings.ToLower(ev.Title), c.TitleContains) {
		return false
	}
	if len(c.DaysOfWeek) > 0 {
		ok := false
		for _, d := range c.DaysOfWeek {
			if ev.Start.Weekday() == d {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if c.RecurringOnly && ev.RecurrenceID == "" {
		return false
	}
	return true
}

// Effect is what a matched rule does to an event's treatment.
type Effect struct {
	// Suppress drops the event from proposal generation entirely.
	Suppress bool `json:"suppress,omitempty"`

	// SetScore overrides the computed score when non-nil.
	SetScore *float64 `json:"set_score,omitempty"`

	// AddScore shifts the computed score; result is clamped to [0,1].
	AddScore float64 `json:"add_score,omitempty"`

	// PrepLead requests preparation this long before matched events.
	PrepLead time.Duration `json:"prep_lead,omitempty"`

	// EveryN limits check-ins to every nth occurrence of a series.
	EveryN int `json:"every_n,omitempty"`
}

// Rule is one stored user rule.
type Rule struct {
	ID          int64     `json:"id"`
	SourceText  string    `json:"source_text"`
	Description string    `json:"description"`
	Condition   Condition `json:"condition"`
	Effect      Effect    `json:"effect"`

	// Confidence in [0,1] weighs this rule against conflicting ones.
	Confidence float64 `json:"confidence"`

	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

type pattern struct {
	re    *regexp.Regexp
	build func(m []string) (Condition, Effect, string)
}

var weekendDays = []time.Weekday{time.Saturday, time.Sunday}

var patterns = []pattern{
	// "Never bother me on weekends" (day patterns before generic
	// suppression so "never bother me on saturdays" lands here).
	{
		re: regexp.MustCompile(`(?:never|don.?t|do not|suppress)\s+(?:\w+\s+)*(?:on\s+)?(?:saturday|sunday|weekend)`),
		build: func(m []string) (Condition, Effect, string) {
			return Condition{DaysOfWeek: weekendDays},
				Effect{Suppress: true},
				"suppress all proposals on weekends"
		},
	},
	// "Never bother me about standups" / "Suppress standup"
	{
		re: regexp.MustCompile(`(?:never|suppress|ignore|skip|don.?t|do not)\s+(?:bother|ask|remind|notify|check)\S*\s+(?:me\s+)?(?:about|for)?\s*(\w+)`),
		build: func(m []string) (Condition, Effect, string) {
			kw := singular(m[1])
			return Condition{TitleContains: kw},
				Effect{Suppress: true},
				fmt.Sprintf("suppress proposals for events matching %q", kw)
		},
	},
	// "Always prep me 2 days before anything with the word board"
	{
		re: regexp.MustCompile(`always\s+prep\s+(?:me\s+)?(\d+)\s+days?\s+before\s+.*?(?:word\s+)?["']?(\w+)["']?$`),
		build: func(m []string) (Condition, Effect, string) {
			days, _ := strconv.Atoi(m[1])
			kw := m[2]
			score := 0.9
			return Condition{TitleContains: kw},
				Effect{SetScore: &score, PrepLead: time.Duration(days) * 24 * time.Hour},
				fmt.Sprintf("always prep %d days before %q events", days, kw)
		},
	},
	// "Always remind me 3 hours before interviews"
	{
		re: regexp.MustCompile(`always\s+remind\s+(?:me\s+)?(\d+)\s+hours?\s+before\s+.*?(?:word\s+)?["']?(\w+)["']?$`),
		build: func(m []string) (Condition, Effect, string) {
			hours, _ := strconv.Atoi(m[1])
			kw := singular(m[2])
			score := 0.8
			return Condition{TitleContains: kw},
				Effect{SetScore: &score, PrepLead: time.Duration(hours) * time.Hour},
				fmt.Sprintf("always remind %d hours before %q events", hours, kw)
		},
	},
	// "Boost score for investor"
	{
		re: regexp.MustCompile(`(?:boost|raise|increase)\s+(?:score|priority)\s+for\s+.*?(?:word\s+)?["']?(\w+)["']?$`),
		build: func(m []string) (Condition, Effect, string) {
			kw := singular(m[1])
			return Condition{TitleContains: kw},
				Effect{AddScore: 0.3},
				fmt.Sprintf("raise score for events matching %q", kw)
		},
	},
	// "Lower score for standup"
	{
		re: regexp.MustCompile(`(?:lower|reduce|decrease)\s+(?:score|priority)\s+for\s+.*?(?:word\s+)?["']?(\w+)["']?$`),
		build: func(m []string) (Condition, Effect, string) {
			kw := singular(m[1])
			return Condition{TitleContains: kw},
				Effect{AddScore: -0.3},
				fmt.Sprintf("lower score for events matching %q", kw)
		},
	},
	// "Only check in every 4 occurrences of standup"
	{
		re: regexp.MustCompile(`(?:only|just)\s+check.?in\s+every\s+(\d+)\s+(?:times?|occurrences?|instances?)\s+(?:of\s+)?.*?["']?(\w+)["']?$`),
		build: func(m []string) (Condition, Effect, string) {
			n, _ := strconv.Atoi(m[1])
			kw := singular(m[2])
			return Condition{TitleContains: kw, RecurringOnly: true},
				Effect{EveryN: n},
				fmt.Sprintf("check in every %d occurrences of %q", n, kw)
		},
	},
}

// Suggestions lists example phrasings shown when parsing fails.
var Suggestions = []string{
	"Never bother me about standups",
	"Always prep me 2 days before anything with the word board",
	"Suppress all events on weekends",
	"Boost score for investor",
	"Only check in every 4 occurrences of standup",
}

// Parse converts a natural-language statement into a rule. Unparseable
// statements return types.ErrUnparsed; callers should surface
// Suggestions rather than guessing.
func Parse(text string, now time.Time) (Rule, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Rule{}, fmt.Errorf("empty statement: %w", types.ErrUnparsed)
	}
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		cond, eff, desc := p.build(m)
		return Rule{
			SourceText:  text,
			Description: desc,
			Condition:   cond,
			Effect:      eff,
			Confidence:  InitialConfidence,
			CreatedAt:   now,
			Active:      true,
		}, nil
	}
	return Rule{}, fmt.Errorf("%q: %w", text, types.ErrUnparsed)
}

// singular strips a trailing plural s so "standups" matches "standup".
func singular(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}

// Verdict is the rules engine's decision for one scored event.
type Verdict struct {
	Scored scoring.Scored

	// Score after rule adjustment, clamped to [0,1].
	Score float64

	// Suppressed events produce no proposals this cycle.
	Suppressed bool

	// PrepLead, when positive, requests prep this long before start.
	PrepLead time.Duration

	// RuleID identifies the winning rule, 0 when none matched.
	RuleID int64
}

// Evaluate applies active rules to scored events. When several rules
// match one event the highest-confidence rule wins; at equal confidence
// the newest rule wins, so a fresh correction immediately overrides the
// stale rule it contradicts.
func Evaluate(scored []scoring.Scored, active []Rule) []Verdict {
	out := make([]Verdict, len(scored))
	for i, s := range scored {
		v := Verdict{Scored: s, Score: s.Score}
		if winner := winningRule(s.Event, active); winner != nil {
			v.RuleID = winner.ID
			applyEffect(&v, winner.Effect)
		}
		out[i] = v
	}
	return out
}

func winningRule(ev types.CalendarEvent, active []Rule) *Rule {
	var best *Rule
	for i := range active {
		r := &active[i]
		if !r.Active || !r.Condition.Matches(ev) {
			continue
		}
		if best == nil || betterRule(r, best) {
			best = r
		}
	}
	return best
}

func betterRule(a, b *Rule) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func applyEffect(v *Verdict, eff Effect) {
	if eff.Suppress {
		v.Suppressed = true
		v.Score = 0
		return
	}
	if eff.SetScore != nil {
		v.Score = *eff.SetScore
	}
	v.Score = clamp01(v.Score + eff.AddScore)
	v.PrepLead = eff.PrepLead
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
