// Package linkstore persists the action graph: every proposed action,
// the edges tying applied and rejected actions back to their source
// events, active suppression cooldowns, and the per-day nudge log.
//
// The store assumes a single writer. An advisory lock file next to the
// database refuses a second concurrent process rather than risking
// interleaved cycles.
package linkstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tempo-agent/tempo/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS actions (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	source_event_uid TEXT NOT NULL,
	action_event_uid TEXT DEFAULT '',
	state TEXT NOT NULL,
	score REAL NOT NULL DEFAULT 0,
	title TEXT NOT NULL,
	start_at DATETIME NOT NULL,
	end_at DATETIME NOT NULL,
	origin TEXT NOT NULL DEFAULT '',
	origin_id INTEGER NOT NULL DEFAULT 0,
	signature TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_actions_state ON actions(state);
CREATE INDEX IF NOT EXISTS idx_actions_signature ON actions(signature);

CREATE TABLE IF NOT EXISTS links (
	source_event_uid TEXT NOT NULL,
	action_id TEXT NOT NULL,
	relation TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (source_event_uid, action_id, relation)
);

CREATE TABLE IF NOT EXISTS suppressions (
	signature TEXT NOT NULL,
	until_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_suppressions_sig ON suppressions(signature);

CREATE TABLE IF NOT EXISTS nudge_log (
	day TEXT NOT NULL,
	action_id TEXT NOT NULL,
	sent_at DATETIME NOT NULL,
	PRIMARY KEY (day, action_id)
);

CREATE TABLE IF NOT EXISTS quarantine (
	action_id TEXT PRIMARY KEY,
	reason TEXT NOT NULL,
	quarantined_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS actions_archive (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	source_event_uid TEXT NOT NULL,
	action_event_uid TEXT DEFAULT '',
	state TEXT NOT NULL,
	score REAL NOT NULL DEFAULT 0,
	title TEXT NOT NULL,
	start_at DATETIME NOT NULL,
	end_at DATETIME NOT NULL,
	origin TEXT NOT NULL DEFAULT '',
	origin_id INTEGER NOT NULL DEFAULT 0,
	signature TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME,
	archived_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS links_archive (
	source_event_uid TEXT NOT NULL,
	action_id TEXT NOT NULL,
	relation TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	archived_at DATETIME NOT NULL,
	PRIMARY KEY (source_event_uid, action_id, relation)
);
`

// Store is the sqlite-backed link graph.
type Store struct {
	db       *sql.DB
	lockPath string
	log      *slog.Logger
}

// Open opens (creating if needed) the store at path and takes the
// single-writer lock. A held lock fails fast with types.ErrStoreLocked.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	lockPath := path + ".lock"
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%s: %w", lockPath, types.ErrStoreLocked)
		}
		return nil, fmt.Errorf("take store lock: %w", err)
	}
	fmt.Fprintf(lock, "%d\n", os.Getpid())
	lock.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, lockPath: lockPath, log: log}, nil
}

// Close releases the database and the writer lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if rmErr := os.Remove(s.lockPath); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// CreateAction inserts a new action row.
func (s *Store) CreateAction(a types.Action) error {
	_, err := s.db.Exec(`
		INSERT INTO actions
			(id, type, source_event_uid, action_event_uid, state, score,
			 title, start_at, end_at, origin, origin_id, signature, created_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Type, a.SourceEventUID, a.ActionEventUID, a.State, a.Score,
		a.Title, a.Start, a.End, a.Origin, a.OriginID, a.Signature, a.CreatedAt, a.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert action %s: %w", a.ID, err)
	}
	return nil
}

// GetAction fetches one action by id.
func (s *Store) GetAction(id string) (types.Action, error) {
	row := s.db.QueryRow(selectActions+" WHERE id = ?", id)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Action{}, types.ErrActionNotFound
	}
	return a, err
}

// TransitionAction moves id from one state to another atomically. A
// stale from state fails with types.ErrIllegalTransition.
func (s *Store) TransitionAction(id string, from, to types.ActionState) error {
	res, err := s.db.Exec(
		"UPDATE actions SET state = ? WHERE id = ? AND state = ?", to, id, from)
	if err != nil {
		return fmt.Errorf("transition %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.GetAction(id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%s not in state %s: %w", id, from, types.ErrIllegalTransition)
	}
	return nil
}

// SetActionTimes rewrites an action's window.
func (s *Store) SetActionTimes(id string, start, end time.Time) error {
	res, err := s.db.Exec(
		"UPDATE actions SET start_at = ?, end_at = ? WHERE id = ?", start, end, id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

// MarkApplied records the apply in one statement.
func (s *Store) MarkApplied(id, actionEventUID string) error {
	res, err := s.db.Exec(
		"UPDATE actions SET state = ?, action_event_uid = ? WHERE id = ? AND state = ?",
		types.StateApplied, actionEventUID, id, types.StateConfirmed)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func oneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrActionNotFound
	}
	return nil
}

const selectActions = `
	SELECT id, type, source_event_uid, action_event_uid, state, score,
	       title, start_at, end_at, origin, origin_id, signature, created_at, expires_at
	FROM actions`

// ListActionsByState returns actions in a state, oldest first.
func (s *Store) ListActionsByState(state types.ActionState) ([]types.Action, error) {
	return s.listWhere(" WHERE state = ? ORDER BY created_at, id", state)
}

// ListOpenActions returns all non-terminal actions.
func (s *Store) ListOpenActions() ([]types.Action, error) {
	return s.listWhere(" WHERE state IN (?, ?) ORDER BY created_at, id",
		types.StateProposed, types.StateConfirmed)
}

// OpenSignatures returns the signature set of non-terminal actions.
func (s *Store) OpenSignatures() (map[string]bool, error) {
	open, err := s.ListOpenActions()
	if err != nil {
		return nil, err
	}
	sigs := make(map[string]bool, len(open))
	for _, a := range open {
		sigs[a.Signature] = true
	}
	return sigs, nil
}

// listWhere scans matching rows. Rows that cannot be decoded or that
// carry an unknown type or state are moved to quarantine instead of
// poisoning the cycle.
func (s *Store) listWhere(clause string, args ...any) ([]types.Action, error) {
	rows, err := s.db.Query(selectActions+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Action
	var bad []string
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			s.log.Warn("skipping undecodable action row", "err", err)
			continue
		}
		if !types.ValidActionType(a.Type) {
			bad = append(bad, a.ID)
			continue
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range bad {
		s.quarantine(id, "unknown action type")
	}
	return out, nil
}

func (s *Store) quarantine(id, reason string) {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO quarantine (action_id, reason, quarantined_at)
		VALUES (?,?,?)`, id, reason, time.Now().UTC())
	if err == nil {
		_, err = s.db.Exec("DELETE FROM actions WHERE id = ?", id)
	}
	if err != nil {
		s.log.Warn("quarantine failed", "action", id, "err", err)
		return
	}
	s.log.Warn("quarantined corrupt action row", "action", id, "reason", reason)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAction(row scannable) (types.Action, error) {
	var a types.Action
	var expires sql.NullTime
	err := row.Scan(&a.ID, &a.Type, &a.SourceEventUID, &a.ActionEventUID,
		&a.State, &a.Score, &a.Title, &a.Start, &a.End, &a.Origin,
		&a.OriginID, &a.Signature, &a.CreatedAt, &expires)
	if err != nil {
		return types.Action{}, err
	}
	if expires.Valid {
		a.ExpiresAt = expires.Time
	}
	return a, nil
}

// AddLink records one graph edge. Duplicate edges are ignored.
func (s *Store) AddLink(e types.LinkEdge) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO links (source_event_uid, action_id, relation, created_at)
		VALUES (?,?,?,?)`,
		e.SourceEventUID, e.ActionID, e.Relation, e.CreatedAt)
	return err
}

// LinksForEvent returns the edges touching one source event.
func (s *Store) LinksForEvent(sourceEventUID string) ([]types.LinkEdge, error) {
	rows, err := s.db.Query(`
		SELECT source_event_uid, action_id, relation, created_at
		FROM links WHERE source_event_uid = ? ORDER BY created_at, action_id`,
		sourceEventUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.LinkEdge
	for rows.Next() {
		var e types.LinkEdge
		if err := rows.Scan(&e.SourceEventUID, &e.ActionID, &e.Relation, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddSuppression opens a cooldown for an action class.
func (s *Store) AddSuppression(e types.SuppressionEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO suppressions (signature, until_at, created_at) VALUES (?,?,?)`,
		e.Signature, e.Until, e.CreatedAt)
	return err
}

// ActiveSuppressions returns signatures whose cooldown is still running.
func (s *Store) ActiveSuppressions(now time.Time) (map[string]bool, error) {
	rows, err := s.db.Query(
		"SELECT DISTINCT signature FROM suppressions WHERE until_at > ?", now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, err
		}
		out[sig] = true
	}
	return out, rows.Err()
}

// RecordNudge logs one surfaced proposal against the daily budget.
func (s *Store) RecordNudge(actionID string, now time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO nudge_log (day, action_id, sent_at) VALUES (?,?,?)`,
		now.Format("2006-01-02"), actionID, now)
	return err
}

// UnnotifiedProposals returns proposed actions that have never been
// delivered, oldest first. Quiet hours defer delivery, not planning, so
// the next daytime cycle picks these up.
func (s *Store) UnnotifiedProposals() ([]types.Action, error) {
	return s.listWhere(`
		WHERE state = ? AND id NOT IN (SELECT action_id FROM nudge_log)
		ORDER BY created_at, id`, types.StateProposed)
}

// NudgesOn counts proposals surfaced on the given day.
func (s *Store) NudgesOn(day time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM nudge_log WHERE day = ?", day.Format("2006-01-02")).Scan(&n)
	return n, err
}

// CleanupStats summarizes one cleanup sweep.
type CleanupStats struct {
	ActionsArchived    int
	SuppressionsPurged int
	LinksPruned        int
}

// Cleanup bounds the working set: terminal actions older than
// cleanupDays move to the archive tables with their edges, and lapsed
// suppressions are purged. Archived rows keep the audit trail but are
// never re-evaluated. Open actions and the nudge log are never touched.
func (s *Store) Cleanup(now time.Time, cleanupDays int) (CleanupStats, error) {
	var stats CleanupStats
	cutoff := now.AddDate(0, 0, -cleanupDays)

	if _, err := s.db.Exec(`
		INSERT OR IGNORE INTO links_archive
			(source_event_uid, action_id, relation, created_at, archived_at)
		SELECT source_event_uid, action_id, relation, created_at, ?
		FROM links WHERE action_id IN (
			SELECT id FROM actions
			WHERE state IN (?,?,?,?) AND created_at < ?)`,
		now, types.StateApplied, types.StateRejected, types.StateCanceled,
		types.StateExpired, cutoff); err != nil {
		return stats, fmt.Errorf("archive links: %w", err)
	}
	res, err := s.db.Exec(`
		DELETE FROM links WHERE action_id IN (
			SELECT id FROM actions
			WHERE state IN (?,?,?,?) AND created_at < ?)`,
		types.StateApplied, types.StateRejected, types.StateCanceled,
		types.StateExpired, cutoff)
	if err != nil {
		return stats, fmt.Errorf("prune links: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		stats.LinksPruned = int(n)
	}

	if _, err := s.db.Exec(`
		INSERT OR IGNORE INTO actions_archive
			(id, type, source_event_uid, action_event_uid, state, score,
			 title, start_at, end_at, origin, origin_id, signature,
			 created_at, expires_at, archived_at)
		SELECT id, type, source_event_uid, action_event_uid, state, score,
		       title, start_at, end_at, origin, origin_id, signature,
		       created_at, expires_at, ?
		FROM actions WHERE state IN (?,?,?,?) AND created_at < ?`,
		now, types.StateApplied, types.StateRejected, types.StateCanceled,
		types.StateExpired, cutoff); err != nil {
		return stats, fmt.Errorf("archive actions: %w", err)
	}
	res, err = s.db.Exec(`
		DELETE FROM actions WHERE state IN (?,?,?,?) AND created_at < ?`,
		types.StateApplied, types.StateRejected, types.StateCanceled,
		types.StateExpired, cutoff)
	if err != nil {
		return stats, fmt.Errorf("prune actions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		stats.ActionsArchived = int(n)
	}

	res, err = s.db.Exec("DELETE FROM suppressions WHERE until_at <= ?", now)
	if err != nil {
		return stats, fmt.Errorf("purge suppressions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		stats.SuppressionsPurged = int(n)
	}
	return stats, nil
}

// ArchivedActions returns archived rows, oldest first.
func (s *Store) ArchivedActions() ([]types.Action, error) {
	rows, err := s.db.Query(`
		SELECT id, type, source_event_uid, action_event_uid, state, score,
		       title, start_at, end_at, origin, origin_id, signature,
		       created_at, expires_at
		FROM actions_archive ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
