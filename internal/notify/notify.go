// Package notify delivers proposal nudges to the user. Channels are
// pluggable; the router consults learned channel statistics so delivery
// drifts toward whatever the user actually responds to.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tempo-agent/tempo/internal/types"
)

// Notification is one message about a proposed action.
type Notification struct {
	ActionID string

	// EventType is the action type, used to key channel preferences.
	EventType string

	Title string
	Body  string
}

// Channel delivers notifications by one mechanism.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Preference answers which channel should carry an event type.
// Implemented by the learner.
type Preference interface {
	PreferredChannel(eventType, defaultChannel string) string
}

// staticPreference always returns the default channel. Used when
// adaptive notifications are disabled.
type staticPreference struct{}

func (staticPreference) PreferredChannel(_, defaultChannel string) string {
	return defaultChannel
}

// StaticPreference returns a preference that never adapts.
func StaticPreference() Preference { return staticPreference{} }

// Router dispatches notifications to the preferred channel, falling
// back to the default channel when the preferred one is unknown.
type Router struct {
	channels       map[string]Channel
	defaultChannel string
	pref           Preference
	log            *slog.Logger
}

// NewRouter builds a router over the given channels.
func NewRouter(channels []Channel, defaultChannel string, pref Preference, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	if pref == nil {
		pref = StaticPreference()
	}
	byName := make(map[string]Channel, len(channels))
	for _, c := range channels {
		byName[c.Name()] = c
	}
	return &Router{
		channels:       byName,
		defaultChannel: defaultChannel,
		pref:           pref,
		log:            log,
	}
}

// Deliver sends one notification and reports which channel carried it.
func (r *Router) Deliver(ctx context.Context, n Notification) (string, error) {
	name := r.pref.PreferredChannel(n.EventType, r.defaultChannel)
	ch, ok := r.channels[name]
	if !ok {
		r.log.Warn("preferred channel unavailable, using default",
			"preferred", name, "default", r.defaultChannel)
		name = r.defaultChannel
		ch, ok = r.channels[name]
		if !ok {
			return "", fmt.Errorf("no channel registered as %q", name)
		}
	}
	if err := ch.Send(ctx, n); err != nil {
		return name, fmt.Errorf("deliver via %s: %w", name, err)
	}
	return name, nil
}

// ProposalNotification renders the standard nudge for an action.
func ProposalNotification(a types.Action) Notification {
	return Notification{
		ActionID:  a.ID,
		EventType: string(a.Type),
		Title:     a.Title,
		Body: fmt.Sprintf("%s %s to %s. Confirm, edit, or reject with the action id %s.",
			a.Type, a.Start.Format("Mon 15:04"), a.End.Format("15:04"), a.ID),
	}
}

// LogChannel writes notifications to the structured log. It is the
// default "system" channel and the one always present.
type LogChannel struct {
	log *slog.Logger
}

func NewLogChannel(log *slog.Logger) *LogChannel {
	if log == nil {
		log = slog.Default()
	}
	return &LogChannel{log: log}
}

func (c *LogChannel) Name() string { return "system" }

func (c *LogChannel) Send(_ context.Context, n Notification) error {
	c.log.Info("nudge", "action", n.ActionID, "title", n.Title, "body", n.Body)
	return nil
}
