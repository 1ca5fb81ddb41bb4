// Package engine runs the decision cycle: snapshot the calendar, detect
// conflicts, score across a worker pool, fold in rules and policies,
// plan, persist, apply, and notify. Every cycle reads all of its state
// up front and
// writes only at the end, so a crash mid-cycle loses at most one
// cycle's proposals, never store consistency.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tempo-agent/tempo/internal/approval"
	"github.com/tempo-agent/tempo/internal/calendar"
	"github.com/tempo-agent/tempo/internal/config"
	"github.com/tempo-agent/tempo/internal/conflict"
	"github.com/tempo-agent/tempo/internal/formatter"
	"github.com/tempo-agent/tempo/internal/learner"
	"github.com/tempo-agent/tempo/internal/linkstore"
	"github.com/tempo-agent/tempo/internal/memstore"
	"github.com/tempo-agent/tempo/internal/notify"
	"github.com/tempo-agent/tempo/internal/planner"
	"github.com/tempo-agent/tempo/internal/policy"
	"github.com/tempo-agent/tempo/internal/rules"
	"github.com/tempo-agent/tempo/internal/scoring"
	"github.com/tempo-agent/tempo/internal/snapshot"
	"github.com/tempo-agent/tempo/internal/types"
	"github.com/tempo-agent/tempo/internal/worker"
)

// Engine wires the pipeline together over one configuration.
type Engine struct {
	cfg    *config.Config
	cal    calendar.Adapter
	links  *linkstore.Store
	mem    *memstore.Store
	gate   *approval.Gate
	router *notify.Router
	learn  *learner.Learner
	log    *slog.Logger

	// lastFingerprint lets daemon ticks skip unchanged calendars.
	lastFingerprint string

	// now is replaceable for tests.
	now func() time.Time
}

// New builds an engine. The calendar adapter should already be guarded.
func New(cfg *config.Config, cal calendar.Adapter, links *linkstore.Store,
	mem *memstore.Store, router *notify.Router, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		cal:    cal,
		links:  links,
		mem:    mem,
		gate:   approval.New(links, cal, cfg.ActionsCalendarID, cfg.ActionCleanupDays, log),
		router: router,
		learn:  learner.New(mem, log),
		log:    log,
		now:    time.Now,
	}
}

// Gate exposes the approval gate for the confirm/reject/edit commands.
func (e *Engine) Gate() *approval.Gate { return e.gate }

// Learner exposes the learner for the outcome command.
func (e *Engine) Learner() *learner.Learner { return e.learn }

// SetClock overrides the engine clock.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Options control one cycle.
type Options struct {
	// DryRun runs the full pipeline but writes nothing anywhere.
	DryRun bool

	// Force runs even when the daemon kill switch is off. Manual
	// `run` invocations set this; daemon ticks never do.
	Force bool
}

// Cycle executes one decision cycle.
func (e *Engine) Cycle(ctx context.Context, opts Options) (formatter.CycleSummary, error) {
	now := e.now()
	sum := formatter.CycleSummary{StartedAt: now, DryRun: opts.DryRun}

	// Kill switch: a disabled daemon does nothing at all, including the
	// expiry sweep. Disabled means inert, not tidy.
	if !e.cfg.DaemonEnabled && !opts.Force {
		sum.Skipped = true
		sum.SkipReason = "daemon disabled"
		return sum, nil
	}

	if !opts.DryRun {
		expired, err := e.gate.ExpireDue(now)
		if err != nil {
			return sum, fmt.Errorf("expire sweep: %w", err)
		}
		sum.Expired = expired
	}

	events, err := e.cal.Events(ctx, now, now.AddDate(0, 0, e.cfg.LookaheadDays))
	if err != nil {
		return sum, fmt.Errorf("read calendar: %w", err)
	}
	snap := snapshot.Build(now, e.cfg.LookaheadDays, events)
	sum.Events = len(snap.Events)

	if snap.Fingerprint == e.lastFingerprint && !opts.Force && sum.Expired == 0 {
		sum.Skipped = true
		sum.SkipReason = "calendar unchanged"
		if opts.DryRun {
			return sum, nil
		}
		// An unchanged calendar only skips the propose stages. Confirmed
		// actions still retry their writes, and proposals deferred by an
		// earlier quiet-hours cycle still go out.
		if e.hasConfirmed() {
			if err := e.applyConfirmed(ctx, now, &sum); err != nil {
				return sum, err
			}
		}
		if !e.cfg.InQuietHours(now) {
			if err := e.deliverPending(ctx, now); err != nil {
				return sum, err
			}
		}
		return sum, nil
	}

	weights, err := e.mem.Weights()
	if err != nil {
		return sum, fmt.Errorf("load weights: %w", err)
	}

	// Conflict detection runs first over the frozen snapshot so findings
	// can feed the disruption feature; scoring then fans out across
	// workers.
	var findings []types.Finding
	if e.cfg.Features.Conflicts {
		findings = conflict.New(e.cfg).Detect(snap)
	}
	sum.Findings = len(findings)

	scorer := scoring.New(weights, e.mem, e.cfg.MemoryDecayHalfLifeDays).
		WithConflicts(findings)
	pool := worker.NewPool[types.CalendarEvent, scoring.Scored](0)
	results := pool.Process(snap.Events, func(ev types.CalendarEvent) (scoring.Scored, error) {
		return scorer.Score(now, ev), nil
	})
	scored := make([]scoring.Scored, len(results))
	for i, r := range results {
		scored[i] = r.Value
	}

	verdicts, err := e.applyRules(scored)
	if err != nil {
		return sum, err
	}

	candidates, err := e.firePolicies(now, snap, verdicts)
	if err != nil {
		return sum, err
	}

	suppressed, err := e.links.ActiveSuppressions(now)
	if err != nil {
		return sum, fmt.Errorf("load suppressions: %w", err)
	}
	open, err := e.links.OpenSignatures()
	if err != nil {
		return sum, fmt.Errorf("load open signatures: %w", err)
	}
	nudges, err := e.links.NudgesOn(now)
	if err != nil {
		return sum, fmt.Errorf("count nudges: %w", err)
	}

	plan := planner.New(e.cfg).Build(planner.Inputs{
		Now:                  now,
		Verdicts:             verdicts,
		Findings:             findings,
		PolicyCandidates:     candidates,
		SuppressedSignatures: suppressed,
		OpenSignatures:       open,
		NudgesUsedToday:      nudges,
		PrepHistory:          e.mem.PrepHistory(now, e.cfg.MemoryDecayHalfLifeDays),
	})
	sum.Proposed = len(plan.Proposals)
	sum.AutoApplied = len(plan.Autonomous)
	sum.Deferred = plan.DeferDelivery
	sum.DroppedByCap = plan.DroppedBudget
	sum.Suppressed = plan.DroppedSuppressed

	if opts.DryRun {
		return sum, nil
	}

	if err := e.persist(ctx, now, plan, &sum); err != nil {
		return sum, err
	}
	e.lastFingerprint = snap.Fingerprint
	e.log.Info("cycle complete", "events", sum.Events, "findings", sum.Findings,
		"proposed", sum.Proposed, "auto_applied", sum.AutoApplied, "applied", sum.Applied)
	return sum, nil
}

func (e *Engine) applyRules(scored []scoring.Scored) ([]rules.Verdict, error) {
	if !e.cfg.Features.Rules {
		verdicts := make([]rules.Verdict, len(scored))
		for i, s := range scored {
			verdicts[i] = rules.Verdict{Scored: s, Score: s.Score}
		}
		return verdicts, nil
	}
	active, err := e.mem.ActiveRules()
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return rules.Evaluate(scored, active), nil
}

func (e *Engine) firePolicies(now time.Time, snap snapshot.Snapshot, verdicts []rules.Verdict) ([]policy.Candidate, error) {
	if !e.cfg.Features.Policies {
		return nil, nil
	}
	active, err := e.mem.ActivePolicies()
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	scores := make(map[string]float64, len(verdicts))
	for _, v := range verdicts {
		if v.Suppressed {
			continue
		}
		scores[v.Scored.Event.UID] = v.Score
	}
	return policy.Evaluate(now, active, snap.Events, scores, e.cfg.AutonomyLevel()), nil
}

// persist writes the plan: actions into the store, autonomous ones
// through to the calendar, and notifications out unless deferred.
func (e *Engine) persist(ctx context.Context, now time.Time, plan planner.Plan, sum *formatter.CycleSummary) error {
	for _, a := range append(plan.Proposals, plan.Autonomous...) {
		if err := e.links.CreateAction(a); err != nil {
			return fmt.Errorf("persist action: %w", err)
		}
		if a.Origin == types.OriginPolicy && a.OriginID != 0 {
			if err := e.mem.MarkPolicyFired(a.OriginID, now); err != nil {
				e.log.Warn("mark policy fired failed", "policy", a.OriginID, "err", err)
			}
		}
	}

	if len(plan.Autonomous) > 0 || e.hasConfirmed() {
		if err := e.applyConfirmed(ctx, now, sum); err != nil {
			return err
		}
	}

	if !plan.DeferDelivery {
		if err := e.deliverPending(ctx, now); err != nil {
			return err
		}
	}
	return nil
}

// applyConfirmed runs the gate's write pass. A missing actions calendar
// is a configuration error, not a cycle failure: planning already
// finished, so it is reported once on the summary and the cycle ends
// cleanly with everything left confirmed.
func (e *Engine) applyConfirmed(ctx context.Context, now time.Time, sum *formatter.CycleSummary) error {
	applied, err := e.gate.ApplyConfirmed(ctx, now)
	sum.Applied = applied
	if err != nil {
		if errors.Is(err, types.ErrNoActionsCalendar) {
			sum.ConfigError = "actions_calendar_id is not set; confirmed actions were not applied"
			e.log.Error("apply refused", "err", err)
			return nil
		}
		return fmt.Errorf("apply confirmed: %w", err)
	}
	return nil
}

func (e *Engine) hasConfirmed() bool {
	confirmed, err := e.links.ListActionsByState(types.StateConfirmed)
	return err == nil && len(confirmed) > 0
}

// deliverPending notifies every proposal not yet surfaced, including
// ones deferred by an earlier quiet-hours cycle.
func (e *Engine) deliverPending(ctx context.Context, now time.Time) error {
	pending, err := e.links.UnnotifiedProposals()
	if err != nil {
		return fmt.Errorf("load pending notifications: %w", err)
	}
	for _, a := range pending {
		via, err := e.router.Deliver(ctx, notify.ProposalNotification(a))
		if err != nil {
			e.log.Warn("notification failed", "action", a.ID, "channel", via, "err", err)
			continue
		}
		if err := e.links.RecordNudge(a.ID, now); err != nil {
			return fmt.Errorf("record nudge: %w", err)
		}
	}
	return nil
}

// Run loops cycles until ctx is canceled. This is the daemon body.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.cfg.CycleIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info("daemon started", "interval", interval)
	for {
		if _, err := e.Cycle(ctx, Options{}); err != nil {
			e.log.Error("cycle failed", "err", err)
		}
		select {
		case <-ctx.Done():
			e.log.Info("daemon stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
