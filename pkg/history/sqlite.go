package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/helix-collective/helix/pkg/router"
)

const schema = `
CREATE TABLE IF NOT EXISTS history_records (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	id       TEXT NOT NULL UNIQUE,
	ts       INTEGER NOT NULL,
	vector   TEXT NOT NULL,
	level    REAL NOT NULL,
	category TEXT NOT NULL,
	context  TEXT
);
CREATE INDEX IF NOT EXISTS idx_history_records_ts ON history_records(ts, seq);

CREATE TABLE IF NOT EXISTS routing_outcomes (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	task_id    TEXT NOT NULL,
	task_type  TEXT NOT NULL,
	category   TEXT,
	handler    TEXT,
	attempts   INTEGER NOT NULL,
	status     TEXT NOT NULL,
	latency_ns INTEGER NOT NULL,
	ts         INTEGER NOT NULL,
	error      TEXT,
	trail      TEXT
);
CREATE INDEX IF NOT EXISTS idx_routing_outcomes_ts ON routing_outcomes(ts, seq);`

// SQLiteStore implements Store using SQLite. Timestamps are stored as
// UTC unix nanoseconds.
type SQLiteStore struct {
	mu  sync.RWMutex
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite-backed store.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string, now func() time.Time) (*SQLiteStore, error) {
	if now == nil {
		now = time.Now
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: now}, nil
}

// Append inserts a record in a single statement.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	rec.ID, rec.Timestamp = normalize(rec.ID, rec.Timestamp, s.now)

	vector, err := json.Marshal(rec.Vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}
	var contextJSON *string
	if len(rec.Context) > 0 {
		data, err := json.Marshal(rec.Context)
		if err != nil {
			return fmt.Errorf("encode context: %w", err)
		}
		str := string(data)
		contextJSON = &str
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history_records (id, ts, vector, level, category, context) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixNano(), string(vector), rec.Level, rec.Category, contextJSON)
	if err != nil {
		return insertError("append", rec.ID, err)
	}
	return nil
}

// QueryRange returns records with start <= timestamp <= end.
func (s *SQLiteStore) QueryRange(ctx context.Context, start, end time.Time) ([]Record, error) {
	lo, hi := rangeBounds(start, end)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, vector, level, category, context FROM history_records
		WHERE ts >= ? AND ts <= ? ORDER BY ts, seq`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec         Record
			ts          int64
			vector      string
			contextJSON sql.NullString
		)
		if err := rows.Scan(&rec.ID, &ts, &vector, &rec.Level, &rec.Category, &contextJSON); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts).UTC()
		if err := json.Unmarshal([]byte(vector), &rec.Vector); err != nil {
			return nil, fmt.Errorf("decode vector of %s: %w", rec.ID, err)
		}
		if contextJSON.Valid && contextJSON.String != "" {
			if err := json.Unmarshal([]byte(contextJSON.String), &rec.Context); err != nil {
				return nil, fmt.Errorf("decode context of %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendOutcome inserts a routing outcome in a single statement.
func (s *SQLiteStore) AppendOutcome(ctx context.Context, rec OutcomeRecord) error {
	rec.ID, rec.Timestamp = normalize(rec.ID, rec.Timestamp, s.now)

	var trail *string
	if len(rec.Trail) > 0 {
		data, err := json.Marshal(rec.Trail)
		if err != nil {
			return fmt.Errorf("encode trail: %w", err)
		}
		str := string(data)
		trail = &str
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO routing_outcomes
			(id, task_id, task_type, category, handler, attempts, status, latency_ns, ts, error, trail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TaskID, rec.TaskType, rec.Category, rec.Handler, rec.Attempts,
		string(rec.Status), int64(rec.Latency), rec.Timestamp.UnixNano(), rec.Error, trail)
	if err != nil {
		return insertError("append outcome", rec.ID, err)
	}
	return nil
}

// QueryOutcomes returns outcomes with start <= timestamp <= end.
func (s *SQLiteStore) QueryOutcomes(ctx context.Context, start, end time.Time) ([]OutcomeRecord, error) {
	lo, hi := rangeBounds(start, end)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, task_type, category, handler, attempts, status, latency_ns, ts, error, trail
		FROM routing_outcomes WHERE ts >= ? AND ts <= ? ORDER BY ts, seq`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var (
			rec                      OutcomeRecord
			category, handler, errTx sql.NullString
			trail                    sql.NullString
			status                   string
			latency, ts              int64
		)
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.TaskType, &category, &handler,
			&rec.Attempts, &status, &latency, &ts, &errTx, &trail); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		rec.Category = category.String
		rec.Handler = handler.String
		rec.Error = errTx.String
		rec.Status = router.Status(status)
		rec.Latency = time.Duration(latency)
		rec.Timestamp = time.Unix(0, ts).UTC()
		if trail.Valid && trail.String != "" {
			if err := json.Unmarshal([]byte(trail.String), &rec.Trail); err != nil {
				return nil, fmt.Errorf("decode trail of %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func insertError(op, id string, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s %s: %w", op, id, ErrDuplicateID)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}
