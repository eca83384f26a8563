package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"mtf-screener/internal/model"
)

// Journal persists signals to SQLite for audit and the /signals endpoint.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS signals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	pair        TEXT NOT NULL,
	timeframe   TEXT NOT NULL,
	signal      TEXT NOT NULL,
	score       REAL NOT NULL,
	strength    TEXT,
	candle_ts   INTEGER NOT NULL,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_signals_pair ON signals(pair, timeframe);
CREATE TABLE IF NOT EXISTS aligned_signals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	pair        TEXT NOT NULL,
	direction   TEXT NOT NULL,
	confidence  REAL NOT NULL,
	primary_sig TEXT NOT NULL,
	second_sig  TEXT NOT NULL,
	aligned_at  INTEGER NOT NULL,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_aligned_pair ON aligned_signals(pair);
`

// NewJournal opens (or creates) the journal database at path.
func NewJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	slog.Info("signal journal opened", "component", "sink", "path", path)
	return &Journal{db: db}, nil
}

// DB exposes the handle for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

func (j *Journal) EmitSignal(ctx context.Context, s model.Signal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO signals (pair, timeframe, signal, score, strength, candle_ts) VALUES (?, ?, ?, ?, ?, ?)`,
		s.Pair, s.Timeframe, string(s.Signal), s.Score, s.Strength, s.Timestamp)
	if err != nil {
		return fmt.Errorf("journal insert signal: %w", err)
	}
	return nil
}

func (j *Journal) EmitAligned(ctx context.Context, a model.AlignedSignal) error {
	p, err := json.Marshal(a.Primary)
	if err != nil {
		return err
	}
	s, err := json.Marshal(a.Secondary)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO aligned_signals (pair, direction, confidence, primary_sig, second_sig, aligned_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.Pair, string(a.Direction), a.Confidence, string(p), string(s), a.AlignedAt)
	if err != nil {
		return fmt.Errorf("journal insert aligned: %w", err)
	}
	return nil
}

// Recent returns the last limit signals, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]model.Signal, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT pair, timeframe, signal, score, strength, candle_ts FROM signals ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query signals: %w", err)
	}
	defer rows.Close()

	out := []model.Signal{}
	for rows.Next() {
		var s model.Signal
		var st string
		var strength sql.NullString
		if err := rows.Scan(&s.Pair, &s.Timeframe, &st, &s.Score, &strength, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("journal scan signal: %w", err)
		}
		s.Signal = model.SignalType(st)
		s.Strength = strength.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecentAligned returns the last limit aligned signals, newest first.
func (j *Journal) RecentAligned(ctx context.Context, limit int) ([]model.AlignedSignal, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT pair, direction, confidence, primary_sig, second_sig, aligned_at FROM aligned_signals ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query aligned: %w", err)
	}
	defer rows.Close()

	out := []model.AlignedSignal{}
	for rows.Next() {
		var a model.AlignedSignal
		var dir, p, s string
		if err := rows.Scan(&a.Pair, &dir, &a.Confidence, &p, &s, &a.AlignedAt); err != nil {
			return nil, fmt.Errorf("journal scan aligned: %w", err)
		}
		a.Direction = model.Direction(dir)
		if err := json.Unmarshal([]byte(p), &a.Primary); err != nil {
			return nil, fmt.Errorf("journal decode primary: %w", err)
		}
		if err := json.Unmarshal([]byte(s), &a.Secondary); err != nil {
			return nil, fmt.Errorf("journal decode secondary: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
