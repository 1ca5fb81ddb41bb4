// Package learner closes the feedback loop. Every user signal, whether
// a confirm, a reject, an outcome report, or a notification response,
// nudges the system's parameters: scorer weights, rule and policy
// confidence, and channel preferences. Updates are exponential moving
// averages, so no single data point swings behavior and stale evidence
// fades on its own.
package learner

import (
	"log/slog"
	"time"

	"github.com/tempo-agent/tempo/internal/types"
)

// Alpha is the EMA smoothing factor: u' = (1-alpha)*u + alpha*reward.
const Alpha = 0.2

// weightStep bounds one weight nudge. Roughly 25 consistent outcomes
// move a weight across its full range.
const weightStep = 0.04

// Store is the memory persistence the learner writes through.
type Store interface {
	Weights() (types.Weights, error)
	SaveWeights(w types.Weights) error

	SetRuleConfidence(id int64, confidence float64) error
	SetPolicyConfidence(id int64, confidence float64) error

	ChannelStat(channel, eventType string) (types.ChannelStat, error)
	ChannelStatsFor(eventType string) ([]types.ChannelStat, error)
	SaveChannelStat(st types.ChannelStat) error
}

// Learner applies feedback to stored parameters.
type Learner struct {
	store Store
	log   *slog.Logger
}

func New(store Store, log *slog.Logger) *Learner {
	if log == nil {
		log = slog.Default()
	}
	return &Learner{store: store, log: log}
}

// ema moves current toward reward by Alpha.
func ema(current, reward float64) float64 {
	return (1-Alpha)*current + Alpha*reward
}

// ObserveOutcome nudges scorer weights from one reported outcome.
// A bad or low-energy report means the schedule hurt more than the
// scores predicted, so the disruption weight rises. A good report on a
// prepped event means the impact signal earned its keep.
func (l *Learner) ObserveOutcome(o types.OutcomeRecord, wasPrepped bool, now time.Time) error {
	w, err := l.store.Weights()
	if err != nil {
		return err
	}
	before := w

	switch {
	case o.Sentiment == "bad" || o.EnergyScore < -0.3:
		w.Disruption += weightStep
	case o.Sentiment == "good" && wasPrepped:
		w.Impact += weightStep
	case o.Sentiment == "good":
		// Went fine without intervention; the urgency signal alone was
		// enough, relax impact slightly.
		w.Impact -= weightStep / 2
	default:
		return nil
	}

	w = w.Clamp()
	if w.Impact == before.Impact && w.Urgency == before.Urgency && w.Disruption == before.Disruption {
		return nil
	}
	w.Version++
	w.UpdatedAt = now
	if err := l.store.SaveWeights(w); err != nil {
		return err
	}
	l.log.Info("weights nudged", "version", w.Version,
		"impact", w.Impact, "urgency", w.Urgency, "disruption", w.Disruption)
	return nil
}

// ObserveDecision feeds a confirm/reject back to the rule or policy
// that produced the action. Scorer- and conflict-originated actions
// carry no per-source confidence, so only the suppression cooldown
// (handled by the gate) learns from those.
func (l *Learner) ObserveDecision(a types.Action, currentConfidence float64, accepted bool) error {
	if a.OriginID == 0 {
		return nil
	}
	reward := 0.0
	if accepted {
		reward = 1.0
	}
	next := ema(currentConfidence, reward)

	var err error
	switch a.Origin {
	case types.OriginRule:
		err = l.store.SetRuleConfidence(a.OriginID, next)
	case types.OriginPolicy:
		err = l.store.SetPolicyConfidence(a.OriginID, next)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	l.log.Info("confidence updated", "origin", a.Origin, "id", a.OriginID,
		"confidence", next, "accepted", accepted)
	return nil
}

// ObserveNudge records how one delivered notification went: which
// channel, how long until the user responded, and whether they
// accepted. Latency and accept rate smooth with the same EMA.
func (l *Learner) ObserveNudge(channel, eventType string, latency time.Duration, accepted bool) error {
	st, err := l.store.ChannelStat(channel, eventType)
	if err != nil {
		return err
	}
	reward := 0.0
	if accepted {
		reward = 1.0
	}
	if st.Samples == 0 {
		st.ResponseLatencyEMA = latency.Minutes()
		st.AcceptRateEMA = reward
	} else {
		st.ResponseLatencyEMA = ema(st.ResponseLatencyEMA, latency.Minutes())
		st.AcceptRateEMA = ema(st.AcceptRateEMA, reward)
	}
	st.Samples++
	return l.store.SaveChannelStat(st)
}

// PreferredChannel picks the delivery channel for an event type: the
// highest accept rate among channels with enough samples, or the
// default when nothing has proven itself yet.
func (l *Learner) PreferredChannel(eventType, defaultChannel string) string {
	stats, err := l.store.ChannelStatsFor(eventType)
	if err != nil {
		l.log.Warn("channel stat lookup failed", "event_type", eventType, "err", err)
		return defaultChannel
	}
	best := defaultChannel
	bestRate := -1.0
	for _, st := range stats {
		if st.Samples < types.MinChannelSamples {
			continue
		}
		if st.AcceptRateEMA > bestRate {
			best = st.Channel
			bestRate = st.AcceptRateEMA
		}
	}
	return best
}
