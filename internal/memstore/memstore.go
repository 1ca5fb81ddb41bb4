// Package memstore persists everything the system learns: outcome
// feedback, parsed rules and policies, scorer weights, and notification
// channel statistics. It is the second of the two databases; the link
// graph tracks what the agent did, this one tracks what it believes.
package memstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tempo-agent/tempo/internal/decay"
	"github.com/tempo-agent/tempo/internal/policy"
	"github.com/tempo-agent/tempo/internal/rules"
	"github.com/tempo-agent/tempo/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_uid TEXT NOT NULL,
	event_kind TEXT NOT NULL,
	sentiment TEXT NOT NULL,
	energy_score REAL NOT NULL DEFAULT 0,
	note TEXT DEFAULT '',
	prep_minutes INTEGER DEFAULT 0,
	observed_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_kind ON outcomes(event_kind);

CREATE TABLE IF NOT EXISTS user_rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_text TEXT NOT NULL,
	description TEXT NOT NULL,
	rule_json TEXT NOT NULL,
	confidence REAL NOT NULL,
	created_at DATETIME NOT NULL,
	active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS policies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_text TEXT NOT NULL,
	description TEXT NOT NULL,
	policy_json TEXT NOT NULL,
	required_autonomy TEXT NOT NULL,
	confidence REAL NOT NULL,
	created_at DATETIME NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	times_fired INTEGER NOT NULL DEFAULT 0,
	last_fired DATETIME
);

CREATE TABLE IF NOT EXISTS weights (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	impact REAL NOT NULL,
	urgency REAL NOT NULL,
	disruption REAL NOT NULL,
	version INTEGER NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS channel_stats (
	channel TEXT NOT NULL,
	event_type TEXT NOT NULL,
	response_latency_ema REAL NOT NULL DEFAULT 0,
	accept_rate_ema REAL NOT NULL DEFAULT 0,
	samples INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (channel, event_type)
);
`

// ruleDoc is the JSON shape stored in user_rules.rule_json.
type ruleDoc struct {
	Condition rules.Condition `json:"condition"`
	Effect    rules.Effect    `json:"effect"`
}

// policyDoc is the JSON shape stored in policies.policy_json.
type policyDoc struct {
	Condition policy.Condition  `json:"condition"`
	Action    policy.ActionKind `json:"action"`
	Params    policy.Params     `json:"params"`
}

// Store is the sqlite-backed memory.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if needed) the memory store at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordOutcome appends one feedback record.
func (s *Store) RecordOutcome(o types.OutcomeRecord, eventKind string) error {
	_, err := s.db.Exec(`
		INSERT INTO outcomes
			(event_uid, event_kind, sentiment, energy_score, note, prep_minutes, observed_at)
		VALUES (?,?,?,?,?,?,?)`,
		o.EventUID, eventKind, o.Sentiment, o.EnergyScore, o.Note, o.PrepMinutes, o.ObservedAt)
	return err
}

// Outcomes returns all feedback for an event kind, oldest first.
func (s *Store) Outcomes(eventKind string) []types.OutcomeRecord {
	rows, err := s.db.Query(`
		SELECT event_uid, sentiment, energy_score, note, prep_minutes, observed_at
		FROM outcomes WHERE event_kind = ? ORDER BY observed_at`, eventKind)
	if err != nil {
		s.log.Warn("outcome query failed", "kind", eventKind, "err", err)
		return nil
	}
	defer rows.Close()

	var out []types.OutcomeRecord
	for rows.Next() {
		var o types.OutcomeRecord
		if err := rows.Scan(&o.EventUID, &o.Sentiment, &o.EnergyScore,
			&o.Note, &o.PrepMinutes, &o.ObservedAt); err != nil {
			s.log.Warn("skipping undecodable outcome row", "err", err)
			continue
		}
		out = append(out, o)
	}
	return out
}

// PrepHistory returns a view answering prep-duration queries as of now.
func (s *Store) PrepHistory(now time.Time, halfLifeDays int) PrepHistoryView {
	return PrepHistoryView{store: s, now: now, halfLifeDays: halfLifeDays}
}

// PrepHistoryView answers decay-weighted prep averages at a fixed
// reference time, so one cycle sees consistent numbers throughout.
type PrepHistoryView struct {
	store        *Store
	now          time.Time
	halfLifeDays int
}

// AvgPrepMinutes returns the decay-weighted average of reported prep
// minutes for the kind.
func (v PrepHistoryView) AvgPrepMinutes(eventKind string) (int, bool) {
	var samples []decay.Sample
	for _, o := range v.store.Outcomes(eventKind) {
		if o.PrepMinutes <= 0 {
			continue
		}
		samples = append(samples, decay.Sample{
			Value:      float64(o.PrepMinutes),
			ObservedAt: o.ObservedAt,
		})
	}
	avg, ok := decay.WeightedAverage(samples, v.now, v.halfLifeDays)
	if !ok {
		return 0, false
	}
	return int(avg + 0.5), true
}

// SaveRule stores a parsed rule and returns its id.
func (s *Store) SaveRule(r rules.Rule) (int64, error) {
	doc, err := json.Marshal(ruleDoc{Condition: r.Condition, Effect: r.Effect})
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(`
		INSERT INTO user_rules (source_text, description, rule_json, confidence, created_at, active)
		VALUES (?,?,?,?,?,1)`,
		r.SourceText, r.Description, string(doc), r.Confidence, r.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SaveUnparsedRule keeps a statement the parser could not understand:
// confidence 0, inactive, never evaluated. The text survives so a
// smarter parser can revisit it.
func (s *Store) SaveUnparsedRule(text string, now time.Time) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO user_rules (source_text, description, rule_json, confidence, created_at, active)
		VALUES (?,?,'{}',0,?,0)`,
		text, "unparsed", now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ActiveRules returns all active rules.
func (s *Store) ActiveRules() ([]rules.Rule, error) {
	rows, err := s.db.Query(`
		SELECT id, source_text, description, rule_json, confidence, created_at
		FROM user_rules WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		var r rules.Rule
		var doc string
		if err := rows.Scan(&r.ID, &r.SourceText, &r.Description, &doc,
			&r.Confidence, &r.CreatedAt); err != nil {
			return nil, err
		}
		var d ruleDoc
		if err := json.Unmarshal([]byte(doc), &d); err != nil {
			s.log.Warn("skipping undecodable rule", "rule", r.ID, "err", err)
			continue
		}
		r.Condition, r.Effect = d.Condition, d.Effect
		r.Active = true
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeactivateRule soft-deletes a rule; history and confidence survive.
func (s *Store) DeactivateRule(id int64) error {
	res, err := s.db.Exec("UPDATE user_rules SET active = 0 WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("rule %d not found", id)
	}
	return nil
}

// SetRuleConfidence stores a learner update.
func (s *Store) SetRuleConfidence(id int64, confidence float64) error {
	_, err := s.db.Exec("UPDATE user_rules SET confidence = ? WHERE id = ?", confidence, id)
	return err
}

// SavePolicy stores a parsed policy and returns its id.
func (s *Store) SavePolicy(p policy.Policy) (int64, error) {
	doc, err := json.Marshal(policyDoc{Condition: p.Condition, Action: p.Action, Params: p.Params})
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(`
		INSERT INTO policies
			(source_text, description, policy_json, required_autonomy, confidence, created_at, active)
		VALUES (?,?,?,?,?,?,1)`,
		p.SourceText, p.Description, string(doc), p.RequiredAutonomy, p.Confidence, p.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ActivePolicies returns all active policies.
func (s *Store) ActivePolicies() ([]policy.Policy, error) {
	rows, err := s.db.Query(`
		SELECT id, source_text, description, policy_json, required_autonomy,
		       confidence, created_at, times_fired
		FROM policies WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []policy.Policy
	for rows.Next() {
		var p policy.Policy
		var doc, autonomy string
		if err := rows.Scan(&p.ID, &p.SourceText, &p.Description, &doc,
			&autonomy, &p.Confidence, &p.CreatedAt, &p.TimesFired); err != nil {
			return nil, err
		}
		var d policyDoc
		if err := json.Unmarshal([]byte(doc), &d); err != nil {
			s.log.Warn("skipping undecodable policy", "policy", p.ID, "err", err)
			continue
		}
		p.Condition, p.Action, p.Params = d.Condition, d.Action, d.Params
		p.RequiredAutonomy = types.ParseAutonomyLevel(autonomy)
		p.Active = true
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeactivatePolicy soft-deletes a policy.
func (s *Store) DeactivatePolicy(id int64) error {
	res, err := s.db.Exec("UPDATE policies SET active = 0 WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("policy %d not found", id)
	}
	return nil
}

// SetPolicyConfidence stores a learner update.
func (s *Store) SetPolicyConfidence(id int64, confidence float64) error {
	_, err := s.db.Exec("UPDATE policies SET confidence = ? WHERE id = ?", confidence, id)
	return err
}

// MarkPolicyFired bumps the fire counter.
func (s *Store) MarkPolicyFired(id int64, now time.Time) error {
	_, err := s.db.Exec(
		"UPDATE policies SET times_fired = times_fired + 1, last_fired = ? WHERE id = ?",
		now, id)
	return err
}

// Weights returns the stored scorer weights, falling back to defaults
// when the learner has never written any.
func (s *Store) Weights() (types.Weights, error) {
	var w types.Weights
	err := s.db.QueryRow(`
		SELECT impact, urgency, disruption, version, updated_at FROM weights WHERE id = 1`).
		Scan(&w.Impact, &w.Urgency, &w.Disruption, &w.Version, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return types.DefaultWeights(), nil
	}
	if err != nil {
		return types.Weights{}, err
	}
	return w, nil
}

// SaveWeights replaces the weight row.
func (s *Store) SaveWeights(w types.Weights) error {
	w = w.Clamp()
	_, err := s.db.Exec(`
		INSERT INTO weights (id, impact, urgency, disruption, version, updated_at)
		VALUES (1,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			impact = excluded.impact,
			urgency = excluded.urgency,
			disruption = excluded.disruption,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		w.Impact, w.Urgency, w.Disruption, w.Version, w.UpdatedAt)
	return err
}

// ChannelStat fetches one channel/event-type pair.
func (s *Store) ChannelStat(channel, eventType string) (types.ChannelStat, error) {
	st := types.ChannelStat{Channel: channel, EventType: eventType}
	err := s.db.QueryRow(`
		SELECT response_latency_ema, accept_rate_ema, samples
		FROM channel_stats WHERE channel = ? AND event_type = ?`,
		channel, eventType).
		Scan(&st.ResponseLatencyEMA, &st.AcceptRateEMA, &st.Samples)
	if err == sql.ErrNoRows {
		return st, nil
	}
	return st, err
}

// ChannelStatsFor returns all channels observed for an event type.
func (s *Store) ChannelStatsFor(eventType string) ([]types.ChannelStat, error) {
	rows, err := s.db.Query(`
		SELECT channel, event_type, response_latency_ema, accept_rate_ema, samples
		FROM channel_stats WHERE event_type = ? ORDER BY channel`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ChannelStat
	for rows.Next() {
		var st types.ChannelStat
		if err := rows.Scan(&st.Channel, &st.EventType,
			&st.ResponseLatencyEMA, &st.AcceptRateEMA, &st.Samples); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SaveChannelStat upserts one channel/event-type row.
func (s *Store) SaveChannelStat(st types.ChannelStat) error {
	_, err := s.db.Exec(`
		INSERT INTO channel_stats
			(channel, event_type, response_latency_ema, accept_rate_ema, samples)
		VALUES (?,?,?,?,?)
		ON CONFLICT(channel, event_type) DO UPDATE SET
			response_latency_ema = excluded.response_latency_ema,
			accept_rate_ema = excluded.accept_rate_ema,
			samples = excluded.samples`,
		st.Channel, st.EventType, st.ResponseLatencyEMA, st.AcceptRateEMA, st.Samples)
	return err
}
