// Package snapshot builds the immutable calendar view a decision cycle
// operates on. Every downstream component reads the same snapshot; the
// live calendar is never consulted mid-cycle.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tempo-agent/tempo/internal/types"
)

// Snapshot is a frozen, ordered view of the lookahead window.
type Snapshot struct {
	// TakenAt is the cycle reference time.
	TakenAt time.Time

	// From and To bound the window (inclusive / exclusive).
	From time.Time
	To   time.Time

	// Events are sorted by start time, then uid for ties.
	Events []types.CalendarEvent

	// Fingerprint identifies this exact set of events; two snapshots of
	// an unchanged calendar fingerprint identically, which lets the
	// engine short-circuit repeat cycles.
	Fingerprint string
}

// Build freezes events into a snapshot of the window [now, now+lookaheadDays).
// Events entirely outside the window are dropped; partially overlapping
// events are kept.
func Build(now time.Time, lookaheadDays int, events []types.CalendarEvent) Snapshot {
	from := now
	to := now.AddDate(0, 0, lookaheadDays)

	kept := make([]types.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if ev.End.Before(from) || !ev.Start.Before(to) {
			continue
		}
		kept = append(kept, ev)
	}
	sort.Slice(kept, func(i, j int) bool {
		if !kept[i].Start.Equal(kept[j].Start) {
			return kept[i].Start.Before(kept[j].Start)
		}
		return kept[i].UID < kept[j].UID
	})

	return Snapshot{
		TakenAt:     now,
		From:        from,
		To:          to,
		Events:      kept,
		Fingerprint: fingerprint(kept),
	}
}

// ByDay groups events by local calendar date (YYYY-MM-DD), preserving the
// snapshot order within each day. Multi-day events count toward their
// start date.
func (s Snapshot) ByDay() map[string][]types.CalendarEvent {
	days := make(map[string][]types.CalendarEvent)
	for _, ev := range s.Events {
		key := Day(ev.Start)
		days[key] = append(days[key], ev)
	}
	return days
}

// Day formats a time as the snapshot day key.
func Day(t time.Time) string {
	return t.Format("2006-01-02")
}

// fingerprint hashes the identity and timing of every event. Attendee
// and title churn changes the fingerprint too, since both feed scoring.
func fingerprint(events []types.CalendarEvent) string {
	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "%s|%s|%d|%d|%d\n",
			ev.UID, ev.Title, ev.Start.Unix(), ev.End.Unix(), len(ev.Attendees))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:32]
}
