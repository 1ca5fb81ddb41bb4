package snapshot

import (
	"testing"
	"time"

	"github.com/tempo-agent/tempo/internal/types"
)

var now = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

func ev(uid string, start time.Time, d time.Duration) types.CalendarEvent {
	return types.CalendarEvent{UID: uid, Title: uid, Start: start, End: start.Add(d)}
}

func TestBuildSortsAndFilters(t *testing.T) {
	events := []types.CalendarEvent{
		ev("late", now.Add(30*time.Hour), time.Hour),
		ev("early", now.Add(2*time.Hour), time.Hour),
		ev("past", now.Add(-48*time.Hour), time.Hour),
		ev("beyond", now.AddDate(0, 0, 8), time.Hour),
	}
	s := Build(now, 7, events)
	if len(s.Events) != 2 {
		t.Fatalf("kept %d events, want 2", len(s.Events))
	}
	if s.Events[0].UID != "early" || s.Events[1].UID != "late" {
		t.Errorf("order = %s, %s", s.Events[0].UID, s.Events[1].UID)
	}
}

func TestBuildTieBreaksByUID(t *testing.T) {
	start := now.Add(time.Hour)
	s := Build(now, 7, []types.CalendarEvent{
		ev("b", start, time.Hour),
		ev("a", start, time.Hour),
	})
	if s.Events[0].UID != "a" {
		t.Errorf("equal starts should order by uid, got %s first", s.Events[0].UID)
	}
}

func TestFingerprintStability(t *testing.T) {
	events := []types.CalendarEvent{
		ev("b", now.Add(2*time.Hour), time.Hour),
		ev("a", now.Add(time.Hour), time.Hour),
	}
	s1 := Build(now, 7, events)
	// Reversed input order, same content.
	s2 := Build(now, 7, []types.CalendarEvent{events[1], events[0]})
	if s1.Fingerprint != s2.Fingerprint {
		t.Error("fingerprint should not depend on input order")
	}

	moved := ev("a", now.Add(3*time.Hour), time.Hour)
	s3 := Build(now, 7, []types.CalendarEvent{events[0], moved})
	if s3.Fingerprint == s1.Fingerprint {
		t.Error("moving an event must change the fingerprint")
	}
}

func TestByDay(t *testing.T) {
	s := Build(now, 7, []types.CalendarEvent{
		ev("d1a", now.Add(2*time.Hour), time.Hour),
		ev("d1b", now.Add(4*time.Hour), time.Hour),
		ev("d2", now.Add(26*time.Hour), time.Hour),
	})
	days := s.ByDay()
	if len(days["2026-09-01"]) != 2 {
		t.Errorf("day one has %d events, want 2", len(days["2026-09-01"]))
	}
	if len(days["2026-09-02"]) != 1 {
		t.Errorf("day two has %d events, want 1", len(days["2026-09-02"]))
	}
}
