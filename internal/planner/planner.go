// Package planner assembles the cycle's action proposals from every
// decision source: score verdicts, conflict findings, and fired
// policies. It owns deduplication, suppression, the daily nudge budget,
// and quiet-hours deferral. The planner is pure; it returns a Plan and
// writes nothing.
package planner

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tempo-agent/tempo/internal/config"
	"github.com/tempo-agent/tempo/internal/policy"
	"github.com/tempo-agent/tempo/internal/rules"
	"github.com/tempo-agent/tempo/internal/types"
)

// PrepHistory supplies learned prep durations per event kind.
type PrepHistory interface {
	// AvgPrepMinutes returns the decay-weighted average reported prep
	// time for the kind, or false when no history exists.
	AvgPrepMinutes(eventKind string) (int, bool)
}

// Inputs carries everything one planning pass reads.
type Inputs struct {
	Now time.Time

	// Verdicts are the rule-adjusted scored events, snapshot order.
	Verdicts []rules.Verdict

	// Findings are this cycle's conflict detections.
	Findings []types.Finding

	// PolicyCandidates are actions fired policies want to take.
	PolicyCandidates []policy.Candidate

	// SuppressedSignatures are the active rejection cooldowns.
	SuppressedSignatures map[string]bool

	// OpenSignatures are signatures of non-terminal actions already in
	// the store; re-proposing them would duplicate work.
	OpenSignatures map[string]bool

	// NudgesUsedToday counts proposals already surfaced today.
	NudgesUsedToday int

	PrepHistory PrepHistory
}

// Plan is the planner's output for one cycle.
type Plan struct {
	// Proposals require user confirmation, ordered by score descending.
	Proposals []types.Action

	// Autonomous actions skip the gate and are created confirmed.
	Autonomous []types.Action

	// DroppedSuppressed counts candidates removed by active cooldowns.
	DroppedSuppressed int

	// DroppedBudget counts proposals cut by the daily nudge cap.
	DroppedBudget int

	// DeferDelivery is set when now falls in quiet hours: the plan is
	// still persisted, but notification delivery waits.
	DeferDelivery bool
}

// Planner builds plans under one configuration.
type Planner struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Planner {
	return &Planner{cfg: cfg}
}

// candidate is an action draft before dedup and budgeting.
type candidate struct {
	action     types.Action
	autonomous bool
}

// Build assembles the cycle plan. Running Build twice over the same
// inputs (with OpenSignatures updated from the first run) yields an
// empty second plan.
func (p *Planner) Build(in Inputs) Plan {
	var cands []candidate
	cands = append(cands, p.fromVerdicts(in)...)
	cands = append(cands, p.fromFindings(in)...)
	cands = append(cands, p.fromPolicies(in)...)

	cands = dedup(cands)

	plan := Plan{DeferDelivery: p.cfg.InQuietHours(in.Now)}
	var proposals []candidate
	for _, c := range cands {
		if in.SuppressedSignatures[c.action.Signature] {
			plan.DroppedSuppressed++
			continue
		}
		if in.OpenSignatures[c.action.Signature] {
			continue
		}
		if c.autonomous {
			plan.Autonomous = append(plan.Autonomous, c.action)
			continue
		}
		proposals = append(proposals, c)
	}

	// Budget the interruptions: highest scores first, then earliest
	// start for determinism.
	sort.Slice(proposals, func(i, j int) bool {
		a, b := proposals[i].action, proposals[j].action
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Start.Before(b.Start)
	})
	budget := p.cfg.MaxNudgesPerDay - in.NudgesUsedToday
	if budget < 0 {
		budget = 0
	}
	if len(proposals) > budget {
		plan.DroppedBudget = len(proposals) - budget
		proposals = proposals[:budget]
	}
	for _, c := range proposals {
		plan.Proposals = append(plan.Proposals, c.action)
	}
	return plan
}

// fromVerdicts proposes prep blocks for high-scoring events.
func (p *Planner) fromVerdicts(in Inputs) []candidate {
	var out []candidate
	for _, v := range in.Verdicts {
		if v.Suppressed {
			continue
		}
		ruleRequested := v.PrepLead > 0
		if v.Score < p.cfg.Planner.PrepScoreThreshold && !ruleRequested {
			continue
		}
		ev := v.Scored.Event

		dur := p.prepDuration(in.PrepHistory, ev)
		var start time.Time
		if ruleRequested {
			start = ev.Start.Add(-v.PrepLead)
		} else {
			// Prep runs right up to the pre-event buffer.
			end := ev.Start.Add(-time.Duration(p.cfg.Planner.BufferMinutes) * time.Minute)
			start = end.Add(-dur)
		}
		if !start.After(in.Now) {
			continue
		}
		a := p.newAction(in.Now, types.ActionPrep, ev, "Prep: "+ev.Title, start, start.Add(dur))
		a.Score = v.Score
		a.Origin = types.OriginScorer
		if v.RuleID != 0 {
			a.Origin = types.OriginRule
			a.OriginID = v.RuleID
		}
		out = append(out, candidate{action: a})

		// A settling buffer between prep and the event itself.
		bufStart := ev.Start.Add(-time.Duration(p.cfg.Planner.BufferMinutes) * time.Minute)
		if bufStart.After(in.Now) {
			b := p.newAction(in.Now, types.ActionBuffer, ev, "Buffer before "+ev.Title, bufStart, ev.Start)
			b.Score = v.Score
			b.Origin = a.Origin
			b.OriginID = a.OriginID
			out = append(out, candidate{action: b})
		}
	}
	return out
}

func (p *Planner) prepDuration(hist PrepHistory, ev types.CalendarEvent) time.Duration {
	minutes := p.cfg.Planner.DefaultPrepMinutes
	if hist != nil {
		if m, ok := hist.AvgPrepMinutes(types.EventKind(ev)); ok && m > 0 {
			minutes = m
		}
	}
	return time.Duration(minutes) * time.Minute
}

// fromFindings turns conflict findings into recovery and reschedule
// candidates.
func (p *Planner) fromFindings(in Inputs) []candidate {
	events := make(map[string]types.CalendarEvent, len(in.Verdicts))
	scores := make(map[string]float64, len(in.Verdicts))
	for _, v := range in.Verdicts {
		events[v.Scored.Event.UID] = v.Scored.Event
		scores[v.Scored.Event.UID] = v.Score
	}

	var out []candidate
	for _, f := range in.Findings {
		switch f.Kind {
		case types.FindingBackToBack:
			out = append(out, p.backToBackActions(in.Now, f, events)...)
		case types.FindingOverlap:
			if c, ok := p.overlapAction(in.Now, f, events, scores); ok {
				out = append(out, c)
			}
		case types.FindingOverloadedDay:
			if c, ok := p.overloadAction(in.Now, f, events, scores); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// backToBackActions places a short buffer after each event in the run
// and one longer reset break after the event nearest the run midpoint.
func (p *Planner) backToBackActions(now time.Time, f types.Finding, events map[string]types.CalendarEvent) []candidate {
	bufDur := time.Duration(p.cfg.Planner.BufferMinutes) * time.Minute
	resetDur := time.Duration(p.cfg.Planner.ResetBreakMinutes) * time.Minute
	midIdx := (len(f.EventUIDs) - 1) / 2

	var out []candidate
	for i, uid := range f.EventUIDs {
		ev, ok := events[uid]
		if !ok || !ev.End.After(now) {
			continue
		}
		a := p.newAction(now, types.ActionBuffer, ev, "Buffer after "+ev.Title, ev.End, ev.End.Add(bufDur))
		a.Score = f.Severity
		a.Origin = types.OriginConflict
		out = append(out, candidate{action: a})

		if i == midIdx {
			start := ev.End.Add(bufDur)
			r := p.newAction(now, types.ActionFollowup, ev, "Reset break", start, start.Add(resetDur))
			r.Score = f.Severity
			r.Origin = types.OriginConflict
			out = append(out, candidate{action: r})
		}
	}
	return out
}

// overlapAction proposes rescheduling the less important of two
// overlapping events.
func (p *Planner) overlapAction(now time.Time, f types.Finding, events map[string]types.CalendarEvent, scores map[string]float64) (candidate, bool) {
	if len(f.EventUIDs) < 2 {
		return candidate{}, false
	}
	loser := f.EventUIDs[0]
	if scores[f.EventUIDs[1]] < scores[loser] {
		loser = f.EventUIDs[1]
	}
	ev, ok := events[loser]
	if !ok || !ev.Start.After(now) {
		return candidate{}, false
	}
	a := p.newAction(now, types.ActionReschedule, ev, "Reschedule: "+ev.Title, ev.Start, ev.End)
	a.Score = f.Severity
	a.Origin = types.OriginConflict
	return candidate{action: a}, true
}

// overloadAction proposes rescheduling the least important event of an
// overloaded day to lighten it.
func (p *Planner) overloadAction(now time.Time, f types.Finding, events map[string]types.CalendarEvent, scores map[string]float64) (candidate, bool) {
	var loser string
	for _, uid := range f.EventUIDs {
		ev, ok := events[uid]
		if !ok || !ev.Start.After(now) {
			continue
		}
		if loser == "" || scores[uid] < scores[loser] {
			loser = uid
		}
	}
	if loser == "" {
		return candidate{}, false
	}
	ev := events[loser]
	a := p.newAction(now, types.ActionReschedule, ev, "Reschedule: "+ev.Title, ev.Start, ev.End)
	a.Score = f.Severity
	a.Origin = types.OriginConflict
	return candidate{action: a}, true
}

// fromPolicies converts fired-policy candidates into actions.
func (p *Planner) fromPolicies(in Inputs) []candidate {
	var out []candidate
	for _, pc := range in.PolicyCandidates {
		if !pc.Start.After(in.Now) {
			continue
		}
		a := p.newAction(in.Now, pc.Type, pc.SourceEvent, pc.Title, pc.Start, pc.End)
		a.Score = pc.Confidence
		a.Origin = types.OriginPolicy
		a.OriginID = pc.PolicyID
		if pc.Autonomous {
			a.State = types.StateConfirmed
		}
		out = append(out, candidate{action: a, autonomous: pc.Autonomous})
	}
	return out
}

func (p *Planner) newAction(now time.Time, t types.ActionType, src types.CalendarEvent, title string, start, end time.Time) types.Action {
	return types.Action{
		ID:             uuid.NewString(),
		Type:           t,
		SourceEventUID: src.UID,
		State:          types.StateProposed,
		Title:          title,
		Start:          start,
		End:            end,
		Signature:      types.Signature(types.EventKind(src), t),
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(p.cfg.ProposalTTLHours) * time.Hour),
	}
}

// dedup keeps one candidate per (source event, action type), preferring
// the highest score, then autonomous over gated.
func dedup(cands []candidate) []candidate {
	type key struct {
		uid string
		t   types.ActionType
	}
	best := make(map[key]int)
	var order []key
	for i, c := range cands {
		k := key{c.action.SourceEventUID, c.action.Type}
		j, seen := best[k]
		if !seen {
			best[k] = i
			order = append(order, k)
			continue
		}
		cur := cands[j]
		if c.action.Score > cur.action.Score ||
			(c.action.Score == cur.action.Score && c.autonomous && !cur.autonomous) {
			best[k] = i
		}
	}
	out := make([]candidate, 0, len(order))
	for _, k := range order {
		out = append(out, cands[best[k]])
	}
	return out
}
