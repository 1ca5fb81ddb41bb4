// Package scoring assigns each snapshot event an importance score in
// [0,1] from three features: impact, urgency, and historical disruption.
// Features are combined noisy-or style, so any single strong signal can
// carry an event to a high score and adding evidence never lowers it.
package scoring

import (
	"strings"
	"time"

	"github.com/tempo-agent/tempo/internal/decay"
	"github.com/tempo-agent/tempo/internal/types"
)

// impactKeywords mark event titles that historically demand preparation.
var impactKeywords = []string{
	"board", "investor", "demo", "interview", "exec",
	"review", "presentation", "keynote", "pitch",
}

// largeMeetingSize is the attendee count past which coordination cost
// alone raises impact.
const largeMeetingSize = 6

// History supplies past outcomes for an event kind.
type History interface {
	// Outcomes returns recorded outcomes for the event kind, any order.
	Outcomes(eventKind string) []types.OutcomeRecord
}

// Scorer computes event scores with a fixed weight set. Weights are read
// once at construction; the learner updates them only between cycles.
type Scorer struct {
	weights      types.Weights
	history      History
	halfLifeDays int

	// conflicts holds per-event severity from this cycle's findings.
	conflicts map[string]float64
}

// New builds a scorer. history may be nil when no memory store exists
// yet; the history half of disruption is then always zero.
func New(weights types.Weights, history History, halfLifeDays int) *Scorer {
	return &Scorer{weights: weights.Clamp(), history: history, halfLifeDays: halfLifeDays}
}

// WithConflicts feeds the cycle's conflict findings into the disruption
// feature: an event implicated in a finding carries the highest severity
// among its findings.
func (s *Scorer) WithConflicts(findings []types.Finding) *Scorer {
	m := make(map[string]float64)
	for _, f := range findings {
		for _, uid := range f.EventUIDs {
			if f.Severity > m[uid] {
				m[uid] = f.Severity
			}
		}
	}
	s.conflicts = m
	return s
}

// Scored pairs an event with its score and feature breakdown.
type Scored struct {
	Event types.CalendarEvent

	Score float64

	// Feature values before weighting, kept for explainability.
	Impact     float64
	Urgency    float64
	Disruption float64
}

// Score computes the importance of one event as of now.
//
// Each weighted feature is an independent "reason to care"; the final
// score is the probability that at least one fires:
//
//	score = 1 - (1 - wI*I)(1 - wU*U)(1 - wD*D)
func (s *Scorer) Score(now time.Time, ev types.CalendarEvent) Scored {
	impact := s.impact(ev)
	urgency := urgencyBand(ev.Start.Sub(now))
	disruption := s.disruption(now, ev)

	score := 1 -
		(1-s.weights.Impact*impact)*
			(1-s.weights.Urgency*urgency)*
			(1-s.weights.Disruption*disruption)

	return Scored{
		Event:      ev,
		Score:      clamp01(score),
		Impact:     impact,
		Urgency:    urgency,
		Disruption: disruption,
	}
}

// ScoreAll scores every event in snapshot order.
func (s *Scorer) ScoreAll(now time.Time, events []types.CalendarEvent) []Scored {
	out := make([]Scored, len(events))
	for i, ev := range events {
		out[i] = s.Score(now, ev)
	}
	return out
}

// impact estimates stakes from the event itself: title keywords,
// external attendees, and meeting size.
func (s *Scorer) impact(ev types.CalendarEvent) float64 {
	impact := 0.2
	title := strings.ToLower(ev.Title)
	for _, kw := range impactKeywords {
		if strings.Contains(title, kw) {
			impact += 0.5
			break
		}
	}
	if ev.HasExternalAttendees() {
		impact += 0.3
	}
	if len(ev.Attendees) >= largeMeetingSize {
		impact += 0.1
	}
	return clamp01(impact)
}

// urgencyBand maps time-to-start onto a step function. Bands rather than
// a continuous curve keep scores stable across minor cycle jitter.
func urgencyBand(until time.Duration) float64 {
	switch {
	case until <= 2*time.Hour:
		return 1.0
	case until <= 24*time.Hour:
		return 0.85
	case until <= 48*time.Hour:
		return 0.65
	case until <= 7*24*time.Hour:
		return 0.4
	default:
		return 0.15
	}
}

// disruption combines the decay-weighted badness of past outcomes with
// the event's conflict severity this cycle, noisy-or like the top-level
// score so either signal alone can carry the feature.
func (s *Scorer) disruption(now time.Time, ev types.CalendarEvent) float64 {
	hist := s.historyBadness(now, ev)
	return clamp01(1 - (1-hist)*(1-s.conflicts[ev.UID]))
}

func (s *Scorer) historyBadness(now time.Time, ev types.CalendarEvent) float64 {
	if s.history == nil {
		return 0
	}
	outcomes := s.history.Outcomes(types.EventKind(ev))
	samples := make([]decay.Sample, 0, len(outcomes))
	for _, o := range outcomes {
		samples = append(samples, decay.Sample{
			Value:      badness(o),
			ObservedAt: o.ObservedAt,
		})
	}
	avg, ok := decay.WeightedAverage(samples, now, s.halfLifeDays)
	if !ok {
		return 0
	}
	return clamp01(avg)
}

// badness converts an outcome into a disruption sample in [0,1].
func badness(o types.OutcomeRecord) float64 {
	var v float64
	switch o.Sentiment {
	case "bad":
		v = 1
	case "neutral":
		v = 0.4
	default:
		v = 0
	}
	// Reported low energy pulls neutral and good outcomes up too.
	if o.EnergyScore < 0 {
		v = clamp01(v - o.EnergyScore*0.5)
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
