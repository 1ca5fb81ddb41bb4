// Package policy parses standing instructions that let the agent act
// without per-event confirmation, and evaluates them against scored
// events. Policies differ from rules in two ways: they produce concrete
// action candidates rather than score adjustments, and each carries its
// own autonomy requirement that is checked against the global level at
// evaluation time.
package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tempo-agent/tempo/internal/types"
)

// InitialConfidence matches the rules engine so the two sources compete
// on equal footing until the learner differentiates them.
const InitialConfidence = 0.4

// minTriggerScore is the event score below which event-triggered
// policies do not fire.
const minTriggerScore = 0.5

// ActionKind is what a fired policy does.
type ActionKind string

const (
	// ActionBlockPrep reserves prep time before the matched event.
	ActionBlockPrep ActionKind = "block_prep"

	// ActionAddBuffer reserves recovery time after the matched event.
	ActionAddBuffer ActionKind = "add_buffer"

	// ActionBlockDebrief reserves a debrief slot after the matched event.
	ActionBlockDebrief ActionKind = "block_debrief"

	// ActionBlockFocus reserves a standing focus block on a weekday.
	ActionBlockFocus ActionKind = "block_focus"

	// ActionWarnConfirm flags the event for explicit confirmation.
	ActionWarnConfirm ActionKind = "warn_confirm"
)

// Condition selects the events a policy fires on.
type Condition struct {
	// HighStakes matches events whose score clears the high bar.
	HighStakes bool `json:"high_stakes,omitempty"`

	// TitleContains matches case-insensitively against titles.
	TitleContains string `json:"title_contains,omitempty"`

	// DurationMinutesGT matches events longer than this many minutes.
	DurationMinutesGT int `json:"duration_minutes_gt,omitempty"`

	// Weekday and DaySegment select standing focus windows.
	Weekday    *time.Weekday `json:"weekday,omitempty"`
	DaySegment string        `json:"day_segment,omitempty"`

	// StartHourLT matches events starting before this hour.
	StartHourLT int `json:"start_hour_lt,omitempty"`
}

// highStakesScore is the score at which an event counts as high stakes.
const highStakesScore = 0.75

// Matches reports whether an event with the given score satisfies c.
func (c Condition) Matches(ev types.CalendarEvent, score float64) bool {
	if c.HighStakes && score < highStakesScore {
		return false
	}
	if c.TitleContains != "" &&
		!strings.Contains(strings.ToLower(ev.Title), c.TitleContains) {
		return false
	}
	if c.DurationMinutesGT > 0 && ev.Duration().Minutes() <= float64(c.DurationMinutesGT) {
		return false
	}
	if c.Weekday != nil && ev.Start.Weekday() != *c.Weekday {
		return false
	}
	if c.StartHourLT > 0 && ev.Start.Hour() >= c.StartHourLT {
		return false
	}
	return true
}

// Params shape the generated action.
type Params struct {
	// Lead is how far before the event a prep block starts.
	Lead time.Duration `json:"lead,omitempty"`

	// After is how long after the event end a follow-up block starts.
	After time.Duration `json:"after,omitempty"`

	// Duration is the generated block's length.
	Duration time.Duration `json:"duration,omitempty"`
}

// Policy is one stored standing instruction.
type Policy struct {
	ID          int64      `json:"id"`
	SourceText  string     `json:"source_text"`
	Description string     `json:"description"`
	Condition   Condition  `json:"condition"`
	Action      ActionKind `json:"action"`
	Params      Params     `json:"params"`

	// RequiredAutonomy is the level the policy needs to self-apply.
	// Confirm-level policies still fire but always route through the
	// approval gate.
	RequiredAutonomy types.AutonomyLevel `json:"required_autonomy"`

	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
	Active     bool      `json:"active"`
	TimesFired int       `json:"times_fired"`
}

type pattern struct {
	re    *regexp.Regexp
	build func(m []string) (Condition, ActionKind, Params, types.AutonomyLevel, string)
}

var weekdayNames = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday, "sunday": time.Sunday,
}

var patterns = []pattern{
	// "Always block prep time for high-stakes events"
	{
		re: regexp.MustCompile(`always\s+block\s+prep\s+(?:time\s+)?for\s+(high.?stakes|important|external|investor|board|demo|interview)`),
		build: func(m []string) (Condition, ActionKind, Params, types.AutonomyLevel, string) {
			return Condition{HighStakes: true},
				ActionBlockPrep,
				Params{Lead: 24 * time.Hour, Duration: 30 * time.Minute},
				types.AutonomyAutonomous,
				"block 30 min prep the day before high-stakes events"
		},
	},
	// "Always block prep 2 hours before anything with the word board"
	{
		re: regexp.MustCompile(`always\s+block\s+(?:prep\s+)?(\d+)\s+(hour|day)s?\s+before\s+.{0,40}?(?:word\s+)?["']?(\w+)["']?$`),
		build: func(m []string) (Condition, ActionKind, Params, types.AutonomyLevel, string) {
			n, _ := strconv.Atoi(m[1])
			lead := time.Duration(n) * time.Hour
			if m[2] == "day" {
				lead = time.Duration(n) * 24 * time.Hour
			}
			kw := m[3]
			return Condition{TitleContains: kw},
				ActionBlockPrep,
				Params{Lead: lead, Duration: 30 * time.Minute},
				types.AutonomyAutonomous,
				fmt.Sprintf("block prep %d %ss before %q events", n, m[2], kw)
		},
	},
	// "Protect Friday afternoons"
	{
		re: regexp.MustCompile(`protect\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\s+(morning|afternoon|evening)`),
		build: func(m []string) (Condition, ActionKind, Params, types.AutonomyLevel, string) {
			wd := weekdayNames[m[1]]
			return Condition{Weekday: &wd, DaySegment: m[2]},
				ActionBlockFocus,
				Params{Duration: 2 * time.Hour},
				types.AutonomyAutonomous,
				fmt.Sprintf("block focus time on %s %ss", m[1], m[2])
		},
	},
	// "Always add 10 min buffer after meetings longer than 60 min"
	{
		re: regexp.MustCompile(`always\s+add\s+(\d+)\s+min\s+buffer\s+after\s+(?:meetings?\s+)?(?:longer|more)\s+than\s+(\d+)\s+min`),
		build: func(m []string) (Condition, ActionKind, Params, types.AutonomyLevel, string) {
			buf, _ := strconv.Atoi(m[1])
			longer, _ := strconv.Atoi(m[2])
			return Condition{DurationMinutesGT: longer},
				ActionAddBuffer,
				Params{Duration: time.Duration(buf) * time.Minute},
				types.AutonomyAutonomous,
				fmt.Sprintf("add %d min buffer after meetings longer than %d min", buf, longer)
		},
	},
	// "Always block debrief after demo"
	{
		re: regexp.MustCompile(`always\s+(?:block|add|schedule)\s+(?:a\s+)?debrief\s+after\s+.{0,40}?(?:word\s+)?["']?(\w+)["']?$`),
		build: func(m []string) (Condition, ActionKind, Params, types.AutonomyLevel, string) {
			kw := m[1]
			return Condition{TitleContains: kw},
				ActionBlockDebrief,
				Params{After: 15 * time.Minute, Duration: 15 * time.Minute},
				types.AutonomyAutonomous,
				fmt.Sprintf("block debrief after %q events", kw)
		},
	},
	// "Never schedule meetings before 9 am"
	{
		re: regexp.MustCompile(`never\s+(?:schedule|add|create)\s+meetings?\s+before\s+(\d+)\s*(?:am)?`),
		build: func(m []string) (Condition, ActionKind, Params, types.AutonomyLevel, string) {
			hour, _ := strconv.Atoi(m[1])
			return Condition{StartHourLT: hour},
				ActionWarnConfirm,
				Params{},
				types.AutonomyConfirm,
				fmt.Sprintf("warn before events earlier than %d:00", hour)
		},
	},
}

// Suggestions lists example phrasings shown when parsing fails.
var Suggestions = []string{
	"Always block prep time for high-stakes events",
	"Always block prep 2 hours before anything with the word board",
	"Protect Friday afternoons",
	"Always add 10 min buffer after meetings longer than 60 min",
	"Always block debrief after demo",
}

// Parse converts a natural-language statement into a policy.
func Parse(text string, now time.Time) (Policy, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Policy{}, fmt.Errorf("empty statement: %w", types.ErrUnparsed)
	}
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		cond, kind, params, autonomy, desc := p.build(m)
		return Policy{
			SourceText:       text,
			Description:      desc,
			Condition:        cond,
			Action:           kind,
			Params:           params,
			RequiredAutonomy: autonomy,
			Confidence:       InitialConfidence,
			CreatedAt:        now,
			Active:           true,
		}, nil
	}
	return Policy{}, fmt.Errorf("%q: %w", text, types.ErrUnparsed)
}

// Candidate is one action a fired policy wants to take.
type Candidate struct {
	PolicyID int64

	Type types.ActionType

	SourceEvent types.CalendarEvent

	Title string

	Start time.Time
	End   time.Time

	// Autonomous is true only when the policy's requirement is met by
	// the global level; such candidates skip the approval gate.
	Autonomous bool

	// Confidence carries the policy's confidence for cross-source
	// conflict resolution downstream.
	Confidence float64
}

// Evaluate fires active policies and returns action candidates.
// Event-triggered policies run against scored events; focus policies
// stand on their own and fire for the next protected window. The global
// autonomy level gates self-apply eligibility only; policies always
// fire, and ineligible candidates route through confirmation. Least
// privilege: the stricter of the global level and the policy's own
// requirement wins.
func Evaluate(now time.Time, policies []Policy, events []types.CalendarEvent, scores map[string]float64, global types.AutonomyLevel) []Candidate {
	var out []Candidate
	for _, ev := range events {
		score := scores[ev.UID]
		if score < minTriggerScore {
			continue
		}
		for i := range policies {
			p := &policies[i]
			if !p.Active || p.Action == ActionBlockFocus {
				continue
			}
			if !p.Condition.Matches(ev, score) {
				continue
			}
			c, ok := candidateFor(now, p, ev)
			if !ok {
				continue
			}
			c.Autonomous = global.Allows(p.RequiredAutonomy)
			c.Confidence = p.Confidence
			out = append(out, c)
		}
	}
	for i := range policies {
		p := &policies[i]
		if !p.Active || p.Action != ActionBlockFocus {
			continue
		}
		c, ok := focusCandidate(now, p)
		if !ok {
			continue
		}
		c.Autonomous = global.Allows(p.RequiredAutonomy)
		c.Confidence = p.Confidence
		out = append(out, c)
	}
	return out
}

// segmentStartHours maps day segments to focus-block start hours.
var segmentStartHours = map[string]int{
	"morning":   9,
	"afternoon": 14,
	"evening":   18,
}

// focusCandidate reserves the next occurrence of the policy's protected
// window. The synthetic source event keys the candidate's signature, so
// rejecting one Friday-afternoon block cools the whole window down.
func focusCandidate(now time.Time, p *Policy) (Candidate, bool) {
	if p.Condition.Weekday == nil {
		return Candidate{}, false
	}
	hour, ok := segmentStartHours[p.Condition.DaySegment]
	if !ok {
		return Candidate{}, false
	}
	day := now
	for i := 0; i < 8; i++ {
		start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, now.Location())
		if day.Weekday() == *p.Condition.Weekday && start.After(now) {
			window := strings.ToLower(p.Condition.Weekday.String()) + " " + p.Condition.DaySegment
			return Candidate{
				PolicyID: p.ID,
				Type:     types.ActionFocus,
				SourceEvent: types.CalendarEvent{
					UID:   "focus-" + strings.ReplaceAll(window, " ", "-"),
					Title: window + " focus",
				},
				Title: "Focus time",
				Start: start,
				End:   start.Add(p.Params.Duration),
			}, true
		}
		day = day.AddDate(0, 0, 1)
	}
	return Candidate{}, false
}

func candidateFor(now time.Time, p *Policy, ev types.CalendarEvent) (Candidate, bool) {
	c := Candidate{PolicyID: p.ID, SourceEvent: ev}
	switch p.Action {
	case ActionBlockPrep:
		start := ev.Start.Add(-p.Params.Lead)
		if !start.After(now) {
			// Prep slot already in the past.
			return Candidate{}, false
		}
		c.Type = types.ActionPrep
		c.Title = "Prep: " + ev.Title
		c.Start = start
		c.End = start.Add(p.Params.Duration)
	case ActionAddBuffer:
		c.Type = types.ActionBuffer
		c.Title = "Buffer after " + ev.Title
		c.Start = ev.End
		c.End = ev.End.Add(p.Params.Duration)
	case ActionBlockDebrief:
		start := ev.End.Add(p.Params.After)
		c.Type = types.ActionFollowup
		c.Title = "Debrief: " + ev.Title
		c.Start = start
		c.End = start.Add(p.Params.Duration)
	case ActionWarnConfirm:
		c.Type = types.ActionReschedule
		c.Title = "Review timing: " + ev.Title
		c.Start = ev.Start
		c.End = ev.End
	default:
		return Candidate{}, false
	}
	return c, true
}
