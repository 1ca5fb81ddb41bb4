// Package conflict detects schedule problems in a calendar snapshot:
// overlapping events, long back-to-back runs, and overloaded days.
// Detection is pure; it never mutates state or proposes actions itself.
package conflict

import (
	"fmt"
	"sort"
	"time"

	"github.com/tempo-agent/tempo/internal/config"
	"github.com/tempo-agent/tempo/internal/snapshot"
	"github.com/tempo-agent/tempo/internal/types"
)

// Detector scans snapshots for findings.
type Detector struct {
	workday config.WorkdayConfig
	b2bGap  time.Duration

	// minRunLength is how many consecutive events make a back-to-back
	// run worth reporting.
	minRunLength int
}

// New builds a detector from planner and workday settings.
func New(cfg *config.Config) *Detector {
	return &Detector{
		workday:      cfg.Workday,
		b2bGap:       time.Duration(cfg.Planner.BackToBackGapMinutes) * time.Minute,
		minRunLength: 3,
	}
}

// Detect returns all findings for the snapshot, ordered by day, then
// kind, then first implicated event. The same snapshot always yields
// the same findings in the same order.
func (d *Detector) Detect(snap snapshot.Snapshot) []types.Finding {
	var findings []types.Finding
	findings = append(findings, d.overlaps(snap.Events)...)
	findings = append(findings, d.backToBackRuns(snap.Events)...)
	findings = append(findings, d.overloadedDays(snap)...)

	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return firstUID(a) < firstUID(b)
	})
	return findings
}

func firstUID(f types.Finding) string {
	if len(f.EventUIDs) == 0 {
		return ""
	}
	return f.EventUIDs[0]
}

// overlaps reports every pair of events whose times intersect. Events
// are start-sorted, so the inner scan stops at the first non-overlap.
func (d *Detector) overlaps(events []types.CalendarEvent) []types.Finding {
	var findings []types.Finding
	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			if !events[j].Start.Before(events[i].End) {
				break
			}
			a, b := events[i], events[j]
			overlap := minTime(a.End, b.End).Sub(b.Start)
			shorter := minDuration(a.Duration(), b.Duration())
			severity := 1.0
			if shorter > 0 {
				severity = clamp01(float64(overlap) / float64(shorter))
			}
			findings = append(findings, types.Finding{
				Kind:      types.FindingOverlap,
				EventUIDs: []string{a.UID, b.UID},
				Severity:  severity,
				Day:       snapshot.Day(a.Start),
				Detail: fmt.Sprintf("%q overlaps %q by %d min",
					a.Title, b.Title, int(overlap.Minutes())),
			})
		}
	}
	return findings
}

// backToBackRuns finds chains of minRunLength or more events where each
// gap is at most the configured threshold. Severity grows with run
// length: 3 events is 0.5, each further event adds 0.1, capped at 1.
func (d *Detector) backToBackRuns(events []types.CalendarEvent) []types.Finding {
	var findings []types.Finding
	i := 0
	for i < len(events) {
		j := i
		for j+1 < len(events) {
			gap := events[j+1].Start.Sub(events[j].End)
			if gap < 0 || gap > d.b2bGap {
				break
			}
			j++
		}
		runLen := j - i + 1
		if runLen >= d.minRunLength {
			uids := make([]string, 0, runLen)
			for k := i; k <= j; k++ {
				uids = append(uids, events[k].UID)
			}
			findings = append(findings, types.Finding{
				Kind:      types.FindingBackToBack,
				EventUIDs: uids,
				Severity:  clamp01(0.5 + 0.1*float64(runLen-d.minRunLength)),
				Day:       snapshot.Day(events[i].Start),
				Detail:    fmt.Sprintf("%d meetings back to back", runLen),
			})
		}
		i = j + 1
	}
	return findings
}

// overloadedDays flags days whose scheduled minutes exceed the overload
// fraction of the working day. Severity is the scheduled fraction.
func (d *Detector) overloadedDays(snap snapshot.Snapshot) []types.Finding {
	workingMinutes := float64((d.workday.EndHour - d.workday.StartHour) * 60)
	if workingMinutes <= 0 {
		return nil
	}

	var findings []types.Finding
	for day, events := range snap.ByDay() {
		var scheduled float64
		uids := make([]string, 0, len(events))
		for _, ev := range events {
			scheduled += ev.Duration().Minutes()
			uids = append(uids, ev.UID)
		}
		fraction := scheduled / workingMinutes
		if fraction < d.workday.OverloadFraction {
			continue
		}
		findings = append(findings, types.Finding{
			Kind:      types.FindingOverloadedDay,
			EventUIDs: uids,
			Severity:  clamp01(fraction),
			Day:       day,
			Detail:    fmt.Sprintf("%.0f of %.0f working minutes scheduled", scheduled, workingMinutes),
		})
	}
	return findings
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
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
