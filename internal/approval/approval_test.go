package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/tempo-agent/tempo/internal/types"
)

var now = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

type memStore struct {
	actions      map[string]*types.Action
	suppressions []types.SuppressionEntry
	links        []types.LinkEdge
}

func newMemStore() *memStore {
	return &memStore{actions: make(map[string]*types.Action)}
}

func (m *memStore) add(a types.Action) {
	cp := a
	m.actions[a.ID] = &cp
}

func (m *memStore) GetAction(id string) (types.Action, error) {
	a, ok := m.actions[id]
	if !ok {
		return types.Action{}, types.ErrActionNotFound
	}
	return *a, nil
}

func (m *memStore) TransitionAction(id string, from, to types.ActionState) error {
	a, ok := m.actions[id]
	if !ok {
		return types.ErrActionNotFound
	}
	if a.State != from {
		return fmt.Errorf("stored state %s: %w", a.State, types.ErrIllegalTransition)
	}
	a.State = to
	return nil
}

func (m *memStore) SetActionTimes(id string, start, end time.Time) error {
	a, ok := m.actions[id]
	if !ok {
		return types.ErrActionNotFound
	}
	a.Start, a.End = start, end
	return nil
}

func (m *memStore) MarkApplied(id, uid string) error {
	a, ok := m.actions[id]
	if !ok {
		return types.ErrActionNotFound
	}
	a.State = types.StateApplied
	a.ActionEventUID = uid
	return nil
}

func (m *memStore) ListActionsByState(state types.ActionState) ([]types.Action, error) {
	var out []types.Action
	for _, a := range m.actions {
		if a.State == state {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) AddSuppression(e types.SuppressionEntry) error {
	m.suppressions = append(m.suppressions, e)
	return nil
}

func (m *memStore) AddLink(e types.LinkEdge) error {
	m.links = append(m.links, e)
	return nil
}

type fakeCalendar struct {
	created int
	fail    bool
}

func (f *fakeCalendar) CreateEvent(_ context.Context, calID, title string, start, end time.Time) (string, error) {
	if f.fail {
		return "", errors.New("backend unavailable")
	}
	f.created++
	return fmt.Sprintf("cal-ev-%d", f.created), nil
}

func proposed(id string) types.Action {
	return types.Action{
		ID:             id,
		Type:           types.ActionPrep,
		SourceEventUID: "board-1",
		State:          types.StateProposed,
		Title:          "Prep: Board Presentation",
		Start:          now.Add(10 * time.Hour),
		End:            now.Add(10*time.Hour + 30*time.Minute),
		Signature:      types.Signature("board-presentation", types.ActionPrep),
		CreatedAt:      now,
		ExpiresAt:      now.Add(24 * time.Hour),
	}
}

func gate(s *memStore, c Calendar) *Gate {
	return New(s, c, "actions-cal", 30, slog.Default())
}

func TestConfirmThenApply(t *testing.T) {
	s := newMemStore()
	s.add(proposed("a1"))
	cal := &fakeCalendar{}
	g := gate(s, cal)

	if err := g.Confirm("a1"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	applied, err := g.ApplyConfirmed(context.Background(), now)
	if err != nil {
		t.Fatalf("ApplyConfirmed: %v", err)
	}
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	a, _ := s.GetAction("a1")
	if a.State != types.StateApplied || a.ActionEventUID == "" {
		t.Errorf("action = %+v", a)
	}
	if len(s.links) != 1 || s.links[0].Relation != types.RelationGenerates {
		t.Errorf("links = %+v, want one generates edge", s.links)
	}
}

func TestRejectWritesSuppression(t *testing.T) {
	s := newMemStore()
	s.add(proposed("a1"))
	g := gate(s, &fakeCalendar{})

	if err := g.Reject("a1", now); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	a, _ := s.GetAction("a1")
	if a.State != types.StateRejected {
		t.Errorf("state = %s", a.State)
	}
	if len(s.suppressions) != 1 {
		t.Fatalf("suppressions = %d, want 1", len(s.suppressions))
	}
	sup := s.suppressions[0]
	if sup.Signature != a.Signature {
		t.Error("suppression must use the action's class signature")
	}
	if want := now.Add(30 * 24 * time.Hour); !sup.Until.Equal(want) {
		t.Errorf("cooldown until %s, want %s", sup.Until, want)
	}
	if len(s.links) != 1 || s.links[0].Relation != types.RelationSuppresses {
		t.Errorf("links = %+v, want one suppresses edge", s.links)
	}
}

func TestIllegalTransitions(t *testing.T) {
	s := newMemStore()
	s.add(proposed("a1"))
	g := gate(s, &fakeCalendar{})

	// Cancel is only legal from confirmed.
	if err := g.Cancel("a1"); !errors.Is(err, types.ErrIllegalTransition) {
		t.Errorf("Cancel from proposed: err = %v", err)
	}
	if err := g.Reject("a1", now); err != nil {
		t.Fatal(err)
	}
	// Terminal states admit nothing.
	if err := g.Confirm("a1"); !errors.Is(err, types.ErrIllegalTransition) {
		t.Errorf("Confirm from rejected: err = %v", err)
	}
}

func TestEditConfirms(t *testing.T) {
	s := newMemStore()
	s.add(proposed("a1"))
	g := gate(s, &fakeCalendar{})

	newStart := now.Add(12 * time.Hour)
	newEnd := newStart.Add(45 * time.Minute)
	if err := g.Edit("a1", newStart, newEnd); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	a, _ := s.GetAction("a1")
	if a.State != types.StateConfirmed {
		t.Errorf("state = %s, want confirmed", a.State)
	}
	if !a.Start.Equal(newStart) || !a.End.Equal(newEnd) {
		t.Errorf("times = %s..%s", a.Start, a.End)
	}
}

func TestEditRejectsBadWindow(t *testing.T) {
	s := newMemStore()
	s.add(proposed("a1"))
	g := gate(s, &fakeCalendar{})
	if err := g.Edit("a1", now, now.Add(-time.Hour)); err == nil {
		t.Error("expected error for end before start")
	}
}

func TestApplyFailureLeavesConfirmed(t *testing.T) {
	s := newMemStore()
	s.add(proposed("a1"))
	cal := &fakeCalendar{fail: true}
	g := gate(s, cal)

	if err := g.Confirm("a1"); err != nil {
		t.Fatal(err)
	}
	applied, err := g.ApplyConfirmed(context.Background(), now)
	if err != nil {
		t.Fatalf("ApplyConfirmed: %v", err)
	}
	if applied != 0 {
		t.Errorf("applied = %d, want 0", applied)
	}
	a, _ := s.GetAction("a1")
	if a.State != types.StateConfirmed {
		t.Errorf("state = %s, want confirmed for retry", a.State)
	}

	// Backend recovers; retry succeeds without duplication.
	cal.fail = false
	applied, err = g.ApplyConfirmed(context.Background(), now)
	if err != nil || applied != 1 {
		t.Fatalf("retry: applied=%d err=%v", applied, err)
	}
	if cal.created != 1 {
		t.Errorf("calendar writes = %d, want 1", cal.created)
	}
}

func TestApplyRequiresActionsCalendar(t *testing.T) {
	s := newMemStore()
	g := New(s, &fakeCalendar{}, "", 30, slog.Default())
	if _, err := g.ApplyConfirmed(context.Background(), now); !errors.Is(err, types.ErrNoActionsCalendar) {
		t.Errorf("err = %v, want ErrNoActionsCalendar", err)
	}
}

func TestExpireDue(t *testing.T) {
	s := newMemStore()
	stale := proposed("stale")
	stale.ExpiresAt = now.Add(-time.Hour)
	fresh := proposed("fresh")
	s.add(stale)
	s.add(fresh)
	g := gate(s, &fakeCalendar{})

	expired, err := g.ExpireDue(now)
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}
	a, _ := s.GetAction("stale")
	if a.State != types.StateExpired {
		t.Errorf("stale state = %s", a.State)
	}
	b, _ := s.GetAction("fresh")
	if b.State != types.StateProposed {
		t.Errorf("fresh state = %s", b.State)
	}
	// Expiry never suppresses.
	if len(s.suppressions) != 0 {
		t.Errorf("expiry wrote suppressions: %+v", s.suppressions)
	}
}
