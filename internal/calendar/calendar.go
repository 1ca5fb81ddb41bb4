// Package calendar defines the backend abstraction the engine reads
// snapshots from and writes actions to, plus a YAML-file backend for
// local use and tests. The write guard lives here: no caller can reach
// a calendar other than the configured actions calendar through the
// guarded adapter.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/tempo-agent/tempo/internal/types"
)

// Adapter is a normalized calendar backend.
type Adapter interface {
	// Events returns all events intersecting [from, to).
	Events(ctx context.Context, from, to time.Time) ([]types.CalendarEvent, error)

	// CreateEvent writes one event and returns its backend uid.
	CreateEvent(ctx context.Context, calendarID, title string, start, end time.Time) (string, error)

	// DeleteEvent removes one event.
	DeleteEvent(ctx context.Context, calendarID, uid string) error
}

// Guarded wraps an adapter so writes can only ever touch the actions
// calendar. Reads pass through untouched.
type Guarded struct {
	inner             Adapter
	actionsCalendarID string
}

// NewGuarded builds the write-guarded view of a backend.
func NewGuarded(inner Adapter, actionsCalendarID string) *Guarded {
	return &Guarded{inner: inner, actionsCalendarID: actionsCalendarID}
}

func (g *Guarded) Events(ctx context.Context, from, to time.Time) ([]types.CalendarEvent, error) {
	return g.inner.Events(ctx, from, to)
}

func (g *Guarded) CreateEvent(ctx context.Context, calendarID, title string, start, end time.Time) (string, error) {
	if g.actionsCalendarID == "" {
		return "", types.ErrNoActionsCalendar
	}
	if calendarID != g.actionsCalendarID {
		return "", fmt.Errorf("create on %q: %w", calendarID, types.ErrWrongCalendar)
	}
	return g.inner.CreateEvent(ctx, calendarID, title, start, end)
}

func (g *Guarded) DeleteEvent(ctx context.Context, calendarID, uid string) error {
	if g.actionsCalendarID == "" {
		return types.ErrNoActionsCalendar
	}
	if calendarID != g.actionsCalendarID {
		return fmt.Errorf("delete on %q: %w", calendarID, types.ErrWrongCalendar)
	}
	return g.inner.DeleteEvent(ctx, calendarID, uid)
}
