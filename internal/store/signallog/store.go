// Package signallog keeps an append-only record of every evaluation cycle
// so past signals survive restarts and can be replayed for review.
package signallog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"ironfly/internal/strategy"
)

// Store writes one row per evaluation cycle to SQLite.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the signal log database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("signal log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signal_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trace_id TEXT,
			ts INTEGER NOT NULL,
			underlying REAL,
			put_sum REAL,
			call_sum REAL,
			diff REAL,
			pcr REAL,
			call_max_strike REAL,
			call_max REAL,
			put_max_strike REAL,
			put_max REAL,
			decision TEXT,
			day_label TEXT,
			trend TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_signal_logs_ts_id ON signal_logs(ts DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("signal log schema: %w", err)
		}
	}
	return nil
}

// Append records one evaluation cycle.
func (s *Store) Append(ctx context.Context, row strategy.SignalRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("signal log store closed")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO signal_logs
		(trace_id, ts, underlying, put_sum, call_sum, diff, pcr,
		 call_max_strike, call_max, put_max_strike, put_max,
		 decision, day_label, trend)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.TraceID, row.Timestamp.Unix(), row.Underlying,
		row.PutSum, row.CallSum, row.Diff, row.PCR,
		row.CallMaxStrike, row.CallMax, row.PutMaxStrike, row.PutMax,
		string(row.Decision), row.DayLabel, row.Trend,
	)
	if err != nil {
		return fmt.Errorf("signal log append: %w", err)
	}
	return nil
}

// Recent returns up to limit rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]strategy.SignalRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("signal log store closed")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT trace_id, ts, underlying,
		put_sum, call_sum, diff, pcr,
		call_max_strike, call_max, put_max_strike, put_max,
		decision, day_label, trend
		FROM signal_logs ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []strategy.SignalRow
	for rows.Next() {
		var r strategy.SignalRow
		var ts int64
		var decision string
		if err := rows.Scan(&r.TraceID, &ts, &r.Underlying,
			&r.PutSum, &r.CallSum, &r.Diff, &r.PCR,
			&r.CallMaxStrike, &r.CallMax, &r.PutMaxStrike, &r.PutMax,
			&decision, &r.DayLabel, &r.Trend); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(ts, 0)
		r.Decision = strategy.Decision(decision)
		out = append(out, r)
	}
	return out, rows.Err()
}
