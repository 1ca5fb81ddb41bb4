// Package approval owns the action lifecycle: the state machine between
// proposal and terminal states, the calendar write on apply, and the
// suppression side effect of a rejection. Every transition goes through
// the gate; nothing else in the pipeline mutates action state.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tempo-agent/tempo/internal/types"
)

// Store is the persistence the gate needs. Implemented by the link
// graph store.
type Store interface {
	GetAction(id string) (types.Action, error)

	// TransitionAction moves an action from one state to another
	// atomically, failing with types.ErrIllegalTransition when the
	// stored state no longer matches from.
	TransitionAction(id string, from, to types.ActionState) error

	// SetActionTimes rewrites a proposed action's window.
	SetActionTimes(id string, start, end time.Time) error

	// MarkApplied records the created calendar entry uid alongside the
	// applied state.
	MarkApplied(id, actionEventUID string) error

	ListActionsByState(state types.ActionState) ([]types.Action, error)

	AddSuppression(entry types.SuppressionEntry) error

	AddLink(edge types.LinkEdge) error
}

// Calendar is the write capability. The implementation enforces the
// actions-calendar-only guard; the gate never sees other calendars.
type Calendar interface {
	CreateEvent(ctx context.Context, calendarID, title string, start, end time.Time) (string, error)
}

// transitions is the full legal state machine.
var transitions = map[types.ActionState][]types.ActionState{
	types.StateProposed:  {types.StateConfirmed, types.StateRejected, types.StateExpired},
	types.StateConfirmed: {types.StateApplied, types.StateCanceled},
}

func legal(from, to types.ActionState) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Gate mediates all action state changes.
type Gate struct {
	store    Store
	calendar Calendar

	// actionsCalendarID is the sole write target.
	actionsCalendarID string

	// cooldown is how long a rejection suppresses the action class.
	cooldown time.Duration

	log *slog.Logger
}

// New builds a gate. An empty actionsCalendarID disables the apply path
// entirely.
func New(store Store, calendar Calendar, actionsCalendarID string, cooldownDays int, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		store:             store,
		calendar:          calendar,
		actionsCalendarID: actionsCalendarID,
		cooldown:          time.Duration(cooldownDays) * 24 * time.Hour,
		log:               log,
	}
}

// Confirm moves a proposed action to confirmed. The calendar write
// happens separately in ApplyConfirmed so a flaky backend cannot lose
// the user's approval.
func (g *Gate) Confirm(id string) error {
	return g.transition(id, types.StateProposed, types.StateConfirmed)
}

// Reject moves a proposed action to rejected and opens a suppression
// cooldown for its whole class: rejecting one standup prep silences
// standup preps, not just this instance.
func (g *Gate) Reject(id string, now time.Time) error {
	a, err := g.store.GetAction(id)
	if err != nil {
		return err
	}
	if err := g.transition(id, types.StateProposed, types.StateRejected); err != nil {
		return err
	}
	entry := types.SuppressionEntry{
		Signature: a.Signature,
		Until:     now.Add(g.cooldown),
		CreatedAt: now,
	}
	if err := g.store.AddSuppression(entry); err != nil {
		return fmt.Errorf("record suppression for %s: %w", id, err)
	}
	if err := g.store.AddLink(types.LinkEdge{
		SourceEventUID: a.SourceEventUID,
		ActionID:       a.ID,
		Relation:       types.RelationSuppresses,
		CreatedAt:      now,
	}); err != nil {
		return fmt.Errorf("record suppression link for %s: %w", id, err)
	}
	g.log.Info("action rejected", "action", id, "signature", a.Signature,
		"cooldown_until", entry.Until)
	return nil
}

// Cancel withdraws a confirmed action before it is applied.
func (g *Gate) Cancel(id string) error {
	return g.transition(id, types.StateConfirmed, types.StateCanceled)
}

// Edit adjusts a proposed action's window. Editing implies consent, so
// the action is confirmed in the same call.
func (g *Gate) Edit(id string, start, end time.Time) error {
	a, err := g.store.GetAction(id)
	if err != nil {
		return err
	}
	if a.State != types.StateProposed {
		return fmt.Errorf("edit %s in state %s: %w", id, a.State, types.ErrIllegalTransition)
	}
	if !end.After(start) {
		return fmt.Errorf("edit %s: end %s not after start %s", id, end, start)
	}
	if err := g.store.SetActionTimes(id, start, end); err != nil {
		return err
	}
	return g.transition(id, types.StateProposed, types.StateConfirmed)
}

// ApplyConfirmed writes every confirmed action to the actions calendar
// and records the generates edge. A failed write leaves the action
// confirmed for the next cycle to retry; the action is never lost and
// never applied twice, since apply is keyed on the stored state.
func (g *Gate) ApplyConfirmed(ctx context.Context, now time.Time) (applied int, err error) {
	if g.actionsCalendarID == "" {
		return 0, types.ErrNoActionsCalendar
	}
	confirmed, err := g.store.ListActionsByState(types.StateConfirmed)
	if err != nil {
		return 0, err
	}
	for _, a := range confirmed {
		uid, createErr := g.calendar.CreateEvent(ctx, g.actionsCalendarID, a.Title, a.Start, a.End)
		if createErr != nil {
			g.log.Warn("calendar write failed, will retry", "action", a.ID, "err", createErr)
			continue
		}
		if err := g.store.MarkApplied(a.ID, uid); err != nil {
			return applied, fmt.Errorf("mark %s applied: %w", a.ID, err)
		}
		if err := g.store.AddLink(types.LinkEdge{
			SourceEventUID: a.SourceEventUID,
			ActionID:       a.ID,
			Relation:       types.RelationGenerates,
			CreatedAt:      now,
		}); err != nil {
			return applied, fmt.Errorf("record link for %s: %w", a.ID, err)
		}
		applied++
		g.log.Info("action applied", "action", a.ID, "type", a.Type, "event", uid)
	}
	return applied, nil
}

// ExpireDue moves proposals past their deadline to expired. Expiry is
// neutral: unlike rejection it writes no suppression, so the class can
// be proposed again.
func (g *Gate) ExpireDue(now time.Time) (expired int, err error) {
	proposed, err := g.store.ListActionsByState(types.StateProposed)
	if err != nil {
		return 0, err
	}
	for _, a := range proposed {
		if a.ExpiresAt.IsZero() || a.ExpiresAt.After(now) {
			continue
		}
		if err := g.transition(a.ID, types.StateProposed, types.StateExpired); err != nil {
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		g.log.Info("expired stale proposals", "count", expired)
	}
	return expired, nil
}

func (g *Gate) transition(id string, from, to types.ActionState) error {
	if !legal(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, types.ErrIllegalTransition)
	}
	return g.store.TransitionAction(id, from, to)
}
