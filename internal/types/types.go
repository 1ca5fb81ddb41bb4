// Package types defines the data structures shared across the tempo
// decision pipeline: calendar snapshots, candidate actions, rules,
// policies, and learning state.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// Attendee is a single event participant.
type Attendee struct {
	// Email identifies the attendee.
	Email string `json:"email"`

	// External marks attendees outside the user's organization.
	External bool `json:"external,omitempty"`
}

// CalendarEvent is a normalized, backend-agnostic view of one event.
// Immutable for the duration of a cycle.
type CalendarEvent struct {
	// UID is the backend event identifier.
	UID string `json:"uid"`

	// CalendarID is the backend calendar the event lives on.
	CalendarID string `json:"calendar_id"`

	// Title is the event summary line.
	Title string `json:"title"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Attendees []Attendee `json:"attendees,omitempty"`

	// RecurrenceID is set for instances of a recurring series.
	RecurrenceID string `json:"recurrence_id,omitempty"`

	// Location is the free-text event location.
	Location string `json:"location,omitempty"`
}

// Duration returns the scheduled length of the event.
func (e CalendarEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// HasExternalAttendees reports whether any attendee is external.
func (e CalendarEvent) HasExternalAttendees() bool {
	for _, a := range e.Attendees {
		if a.External {
			return true
		}
	}
	return false
}

// ActionType classifies a proposed schedule modification.
type ActionType string

const (
	// ActionPrep reserves preparation time before an event.
	ActionPrep ActionType = "prep"

	// ActionBuffer reserves a short gap guarding against back-to-back fatigue.
	ActionBuffer ActionType = "buffer"

	// ActionFollowup schedules post-event work, including reset breaks.
	ActionFollowup ActionType = "followup"

	// ActionReschedule proposes moving an event.
	ActionReschedule ActionType = "reschedule"

	// ActionFocus reserves a standing focus block in a protected window.
	ActionFocus ActionType = "focus"
)

// ValidActionType reports whether t is a known action type.
func ValidActionType(t ActionType) bool {
	switch t {
	case ActionPrep, ActionBuffer, ActionFollowup, ActionReschedule, ActionFocus:
		return true
	}
	return false
}

// ActionState is a node in the approval state machine.
type ActionState string

const (
	// StateProposed awaits user confirmation.
	StateProposed ActionState = "proposed"

	// StateConfirmed is approved and waiting for the calendar write.
	StateConfirmed ActionState = "confirmed"

	// StateApplied means the calendar write succeeded. Terminal.
	StateApplied ActionState = "applied"

	// StateRejected means the user declined. Terminal.
	StateRejected ActionState = "rejected"

	// StateCanceled means the write failed permanently or the user
	// withdrew before apply. Terminal.
	StateCanceled ActionState = "canceled"

	// StateExpired means no response arrived before the deadline. Terminal.
	StateExpired ActionState = "expired"
)

// Terminal reports whether s permits no further transitions.
func (s ActionState) Terminal() bool {
	switch s {
	case StateApplied, StateRejected, StateCanceled, StateExpired:
		return true
	}
	return false
}

// ActionOrigin records which decision source produced a candidate.
type ActionOrigin string

const (
	OriginScorer   ActionOrigin = "scorer"
	OriginConflict ActionOrigin = "conflict"
	OriginRule     ActionOrigin = "rule"
	OriginPolicy   ActionOrigin = "policy"
)

// Action is one proposed schedule modification.
type Action struct {
	// ID is the unique action identifier.
	ID string `json:"id"`

	Type ActionType `json:"type"`

	// SourceEventUID is the calendar event that triggered this action.
	SourceEventUID string `json:"source_event_uid"`

	// ActionEventUID is the backend uid of the created calendar entry,
	// set on apply.
	ActionEventUID string `json:"action_event_uid,omitempty"`

	State ActionState `json:"state"`

	// Score is the triggering event's importance score in [0,1].
	Score float64 `json:"score"`

	// Title is the rendered summary for the action calendar entry.
	Title string `json:"title"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Origin is the decision source that proposed this action.
	Origin ActionOrigin `json:"origin"`

	// OriginID is the rule or policy id behind a rule/policy origin,
	// zero otherwise. Outcome credit flows back along it.
	OriginID int64 `json:"origin_id,omitempty"`

	// Signature is the suppression class key (event kind + action type).
	Signature string `json:"signature"`

	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt bounds how long a proposal waits for a response.
	ExpiresAt time.Time `json:"expires_at"`
}

// LinkRelation labels an edge between a source event and an action.
type LinkRelation string

const (
	// RelationGenerates links an applied action to its source event.
	RelationGenerates LinkRelation = "generates"

	// RelationSuppresses links a rejection to the class it suppressed.
	RelationSuppresses LinkRelation = "suppresses"
)

// LinkEdge is one edge in the link graph.
type LinkEdge struct {
	SourceEventUID string       `json:"source_event_uid"`
	ActionID       string       `json:"action_id"`
	Relation       LinkRelation `json:"relation"`
	CreatedAt      time.Time    `json:"created_at"`
}

// SuppressionEntry blocks re-proposal of an action class until Until passes.
type SuppressionEntry struct {
	Signature string    `json:"signature"`
	Until     time.Time `json:"until"`
	CreatedAt time.Time `json:"created_at"`
}

// AutonomyLevel controls whether actions require explicit confirmation.
type AutonomyLevel string

const (
	// AutonomyConfirm routes every action through user approval. Default.
	AutonomyConfirm AutonomyLevel = "confirm"

	// AutonomyAutonomous lets eligible policy actions self-apply.
	AutonomyAutonomous AutonomyLevel = "autonomous"
)

// ParseAutonomyLevel parses raw input, failing closed to confirm for
// unknown or empty values.
func ParseAutonomyLevel(raw string) AutonomyLevel {
	if strings.EqualFold(strings.TrimSpace(raw), string(AutonomyAutonomous)) {
		return AutonomyAutonomous
	}
	return AutonomyConfirm
}

// Allows reports whether the global level l satisfies a requirement.
// The more restrictive of the two always wins.
func (l AutonomyLevel) Allows(required AutonomyLevel) bool {
	return l == AutonomyAutonomous && required == AutonomyAutonomous
}

// FindingKind classifies a conflict-detector result.
type FindingKind string

const (
	FindingOverlap       FindingKind = "overlap"
	FindingBackToBack    FindingKind = "back_to_back"
	FindingOverloadedDay FindingKind = "overloaded_day"
)

// Finding is one detected schedule problem.
type Finding struct {
	Kind FindingKind `json:"kind"`

	// EventUIDs are the implicated events, ordered by start time.
	EventUIDs []string `json:"event_uids"`

	// Severity is in [0,1].
	Severity float64 `json:"severity"`

	// Day is the calendar date the finding falls on (YYYY-MM-DD).
	Day string `json:"day"`

	// Detail is a short human-readable summary.
	Detail string `json:"detail"`
}

// OutcomeRecord is user feedback about how an event went. Feeds the learner.
type OutcomeRecord struct {
	EventUID string `json:"event_uid"`

	// Sentiment is one of "good", "neutral", "bad".
	Sentiment string `json:"sentiment"`

	// EnergyScore is the reported energy level in [-1,1].
	EnergyScore float64 `json:"energy_score"`

	Note string `json:"note,omitempty"`

	// PrepMinutes is how long the user actually prepared, when reported.
	PrepMinutes int `json:"prep_minutes,omitempty"`

	ObservedAt time.Time `json:"observed_at"`
}

// ChannelStat tracks learned effectiveness of one notification channel
// for one event type.
type ChannelStat struct {
	Channel   string `json:"channel"`
	EventType string `json:"event_type"`

	// ResponseLatencyEMA is the smoothed response delay in minutes.
	ResponseLatencyEMA float64 `json:"response_latency_ema"`

	// AcceptRateEMA is the smoothed accept rate in [0,1].
	AcceptRateEMA float64 `json:"accept_rate_ema"`

	// Samples counts observed deliveries. A channel is preferred over
	// the default only after MinChannelSamples.
	Samples int `json:"samples"`
}

// MinChannelSamples is the minimum observations before a learned channel
// preference overrides the default.
const MinChannelSamples = 5

// Weights is the versioned scorer parameter set. Read at cycle start,
// written only by the learner between cycles.
type Weights struct {
	// Impact, Urgency, and Disruption are feature weights in [0,1].
	Impact     float64 `json:"impact"`
	Urgency    float64 `json:"urgency"`
	Disruption float64 `json:"disruption"`

	// Version increments on every learner update.
	Version int `json:"version"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultWeights returns the initial scorer parameters.
func DefaultWeights() Weights {
	return Weights{Impact: 0.8, Urgency: 0.7, Disruption: 0.6, Version: 1}
}

// Clamp bounds all weight fields to [0,1].
func (w Weights) Clamp() Weights {
	w.Impact = clamp01(w.Impact)
	w.Urgency = clamp01(w.Urgency)
	w.Disruption = clamp01(w.Disruption)
	return w
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

// EventKind normalizes an event into a suppression class: the slugified
// title for recognizable series (a rejected "standup" prep suppresses all
// standup preps), falling back to the uid for unnamed events.
func EventKind(ev CalendarEvent) string {
	slug := slugify(ev.Title)
	if slug != "" {
		return slug
	}
	return ev.UID
}

// Signature computes the suppression class key for an event kind and
// action type: sha256("kind|type") truncated to 32 hex chars.
func Signature(eventKind string, t ActionType) string {
	sum := sha256.Sum256([]byte(eventKind + "|" + string(t)))
	return hex.EncodeToString(sum[:])[:32]
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
