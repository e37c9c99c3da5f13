package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dopplertower/weather-agent/internal/agent"
	"github.com/dopplertower/weather-agent/internal/weather"
)

// SQLiteStore persists monitoring sessions and alert history in one local
// SQLite database. The two tables have disjoint writers: the session
// registry owns user_sessions, the dispatcher owns alert_history.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at dbPath and ensures the
// schema exists.
func Open(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The design assumes a single process is the sole writer; one connection
	// sidesteps SQLITE_BUSY between the scheduler and request handlers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS user_sessions (
  user_id TEXT PRIMARY KEY,
  email TEXT,
  lat REAL NOT NULL,
  lon REAL NOT NULL,
  location_name TEXT NOT NULL,
  start_time TEXT NOT NULL,
  end_time TEXT NOT NULL,
  baseline_weather TEXT NOT NULL,
  notification_preferences TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS alert_history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id TEXT NOT NULL,
  alert_type TEXT NOT NULL,
  message TEXT NOT NULL,
  severity TEXT NOT NULL,
  sent_at TEXT NOT NULL,
  FOREIGN KEY (user_id) REFERENCES user_sessions (user_id)
);
CREATE INDEX IF NOT EXISTS idx_alert_history_user ON alert_history (user_id, sent_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert inserts or overwrites the session row for a user. Re-registration
// is last-write-wins by design.
func (s *SQLiteStore) Upsert(ctx context.Context, sess agent.Session) error {
	baseline, err := json.Marshal(sess.Baseline)
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	prefs, err := json.Marshal(sess.Prefs)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}

	const stmt = `
INSERT INTO user_sessions (user_id, email, lat, lon, location_name, start_time, end_time, baseline_weather, notification_preferences)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
  email=excluded.email,
  lat=excluded.lat,
  lon=excluded.lon,
  location_name=excluded.location_name,
  start_time=excluded.start_time,
  end_time=excluded.end_time,
  baseline_weather=excluded.baseline_weather,
  notification_preferences=excluded.notification_preferences;
`
	_, err = s.db.ExecContext(ctx, stmt,
		sess.UserID,
		sess.Email,
		sess.Lat,
		sess.Lon,
		sess.LocationName,
		sess.StartTime.UTC().Format(time.RFC3339),
		sess.EndTime.UTC().Format(time.RFC3339),
		string(baseline),
		string(prefs),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// LoadActive returns all persisted sessions whose end time is still in the
// future. Expired rows are left untouched.
func (s *SQLiteStore) LoadActive(ctx context.Context, now time.Time) ([]agent.Session, error) {
	const query = `
SELECT user_id, email, lat, lon, location_name, start_time, end_time, baseline_weather, notification_preferences
FROM user_sessions
WHERE end_time > ?
`
	rows, err := s.db.QueryContext(ctx, query, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []agent.Session
	for rows.Next() {
		var (
			sess             agent.Session
			email            sql.NullString
			startStr, endStr string
			baselineJSON     string
			preferencesJSON  string
		)
		if err := rows.Scan(&sess.UserID, &email, &sess.Lat, &sess.Lon, &sess.LocationName,
			&startStr, &endStr, &baselineJSON, &preferencesJSON); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Email = email.String

		if sess.StartTime, err = time.Parse(time.RFC3339, startStr); err != nil {
			return nil, fmt.Errorf("parse start_time for %s: %w", sess.UserID, err)
		}
		if sess.EndTime, err = time.Parse(time.RFC3339, endStr); err != nil {
			return nil, fmt.Errorf("parse end_time for %s: %w", sess.UserID, err)
		}

		var baseline weather.Snapshot
		if err := json.Unmarshal([]byte(baselineJSON), &baseline); err != nil {
			return nil, fmt.Errorf("unmarshal baseline for %s: %w", sess.UserID, err)
		}
		sess.Baseline = baseline

		var prefs agent.NotificationPrefs
		if err := json.Unmarshal([]byte(preferencesJSON), &prefs); err != nil {
			return nil, fmt.Errorf("unmarshal preferences for %s: %w", sess.UserID, err)
		}
		sess.Prefs = prefs

		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// MarkExpired sets a still-active session's end time to now, so an explicit
// stop survives a restart. Rows that already expired are left as they are.
func (s *SQLiteStore) MarkExpired(ctx context.Context, userID string, now time.Time) error {
	nowStr := now.UTC().Format(time.RFC3339)
	const stmt = `
UPDATE user_sessions
SET end_time = ?
WHERE user_id = ? AND end_time > ?
`
	if _, err := s.db.ExecContext(ctx, stmt, nowStr, userID, nowStr); err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	return nil
}

// Append adds one alert history record. The table is append-only: records
// are never mutated or deleted.
func (s *SQLiteStore) Append(ctx context.Context, rec agent.HistoryRecord) error {
	const stmt = `
INSERT INTO alert_history (user_id, alert_type, message, severity, sent_at)
VALUES (?, ?, ?, ?, ?)
`
	_, err := s.db.ExecContext(ctx, stmt,
		rec.UserID,
		rec.Type,
		rec.Message,
		string(rec.Severity),
		rec.SentAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("append alert history: %w", err)
	}
	return nil
}

// Recent returns up to limit alert history records for a user, most recent
// first.
func (s *SQLiteStore) Recent(ctx context.Context, userID string, limit int) ([]agent.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, user_id, alert_type, message, severity, sent_at
FROM alert_history
WHERE user_id = ?
ORDER BY sent_at DESC, id DESC
LIMIT ?
`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var records []agent.HistoryRecord
	for rows.Next() {
		var (
			rec      agent.HistoryRecord
			severity string
			sentStr  string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Type, &rec.Message, &severity, &sentStr); err != nil {
			return nil, fmt.Errorf("scan alert history: %w", err)
		}
		rec.Severity = agent.Severity(severity)
		if rec.SentAt, err = time.Parse(time.RFC3339, sentStr); err != nil {
			return nil, fmt.Errorf("parse sent_at: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
