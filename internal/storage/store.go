// Package storage records demo runs and their per-instrument metrics in a
// local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusError   = "error"
)

type Store struct {
	db *sql.DB
}

type RunRecord struct {
	Demo      string
	Benchmark string
	StartDate string
	EndDate   string
	Status    string
}

type RunWithMeta struct {
	RunRecord
	ID        int64
	Calls     int
	CreatedAt string
	UpdatedAt string
}

// MetricRecord is one instrument's outcome within a run. Error is set instead
// of the numbers when the instrument was skipped.
type MetricRecord struct {
	RunID         int64
	Code          string
	Name          string
	Beta          float64
	Volatility    float64
	Correlation   float64
	TrackingError float64
	ReturnPct     float64
	DataPoints    int
	Error         string
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps :memory: databases alive across calls
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    demo TEXT NOT NULL,
    benchmark TEXT,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    status TEXT NOT NULL,
    calls INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metrics (
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    code TEXT NOT NULL,
    name TEXT,
    beta REAL,
    volatility REAL,
    correlation REAL,
    tracking_error REAL,
    return_pct REAL,
    data_points INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    UNIQUE(run_id, code)
);

CREATE INDEX IF NOT EXISTS idx_runs_demo_created ON runs(demo, created_at);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// CreateRun inserts a run and returns its id.
func (s *Store) CreateRun(ctx context.Context, run RunRecord) (int64, error) {
	if strings.TrimSpace(run.Demo) == "" {
		return 0, fmt.Errorf("run demo is required")
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO runs (demo, benchmark, start_date, end_date, status)
VALUES (?, ?, ?, ?, ?)
`, run.Demo, run.Benchmark, run.StartDate, run.EndDate, run.Status)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert run id: %w", err)
	}
	return id, nil
}

// InsertMetric stores m, replacing an earlier row for the same run and code.
func (s *Store) InsertMetric(ctx context.Context, m MetricRecord) error {
	if m.RunID <= 0 {
		return fmt.Errorf("metric run id must be positive")
	}
	if strings.TrimSpace(m.Code) == "" {
		return fmt.Errorf("metric code is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO metrics (run_id, code, name, beta, volatility, correlation, tracking_error, return_pct, data_points, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, code) DO UPDATE SET
    name=excluded.name,
    beta=excluded.beta,
    volatility=excluded.volatility,
    correlation=excluded.correlation,
    tracking_error=excluded.tracking_error,
    return_pct=excluded.return_pct,
    data_points=excluded.data_points,
    error=excluded.error
`, m.RunID, m.Code, m.Name, nullable(m.Beta), nullable(m.Volatility), nullable(m.Correlation),
		nullable(m.TrackingError), nullable(m.ReturnPct), m.DataPoints, m.Error)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

// FinishRun sets the final status and provider call count of a run.
func (s *Store) FinishRun(ctx context.Context, runID int64, status string, calls int) error {
	if status == "" {
		status = StatusDone
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE runs
SET status = ?, calls = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`, status, calls, runID)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("update run status: run %d not found", runID)
	}
	return nil
}

// ListRuns lists runs newest first, paging by id.
func (s *Store) ListRuns(ctx context.Context, cursor int64, limit int) ([]RunWithMeta, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, demo, benchmark, start_date, end_date, status, calls, created_at, updated_at
FROM runs
WHERE (? = 0 OR id < ?)
ORDER BY id DESC
LIMIT ?
`, cursor, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunWithMeta
	for rows.Next() {
		var rec RunWithMeta
		var benchmark sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Demo, &benchmark, &rec.StartDate, &rec.EndDate, &rec.Status, &rec.Calls, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Benchmark = benchmark.String
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs rows: %w", err)
	}
	return runs, nil
}

func (s *Store) GetRun(ctx context.Context, runID int64) (*RunWithMeta, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, demo, benchmark, start_date, end_date, status, calls, created_at, updated_at
FROM runs
WHERE id = ?
LIMIT 1
`, runID)

	var rec RunWithMeta
	var benchmark sql.NullString
	if err := row.Scan(&rec.ID, &rec.Demo, &benchmark, &rec.StartDate, &rec.EndDate, &rec.Status, &rec.Calls, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	rec.Benchmark = benchmark.String
	return &rec, nil
}

// ListMetrics returns a run's metrics ordered by code. Columns stored as NULL
// come back as NaN.
func (s *Store) ListMetrics(ctx context.Context, runID int64) ([]MetricRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, code, name, beta, volatility, correlation, tracking_error, return_pct, data_points, error
FROM metrics
WHERE run_id = ?
ORDER BY code ASC
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []MetricRecord
	for rows.Next() {
		var rec MetricRecord
		var name, errText sql.NullString
		var beta, vol, corr, te, ret sql.NullFloat64
		if err := rows.Scan(&rec.RunID, &rec.Code, &name, &beta, &vol, &corr, &te, &ret, &rec.DataPoints, &errText); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		rec.Name = name.String
		rec.Error = errText.String
		rec.Beta = fromNullable(beta)
		rec.Volatility = fromNullable(vol)
		rec.Correlation = fromNullable(corr)
		rec.TrackingError = fromNullable(te)
		rec.ReturnPct = fromNullable(ret)
		metrics = append(metrics, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list metrics rows: %w", err)
	}
	return metrics, nil
}

// NaN is stored as NULL.
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
