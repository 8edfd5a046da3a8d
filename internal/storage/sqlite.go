package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/funnyzak/reqtape/internal/config"
	"github.com/funnyzak/reqtape/internal/logger"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const (
	sqliteDriverName = "sqlite"
)

type sqliteStore struct {
	db  *sql.DB
	cfg *config.StorageConfig
	log logger.Logger
}

func newSQLiteStore(cfg *config.StorageConfig, log logger.Logger) (Store, error) {
	path := cfg.Path
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare sqlite directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(absPath))
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, err
	}
	// a single writer keeps runs and their results consistent
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %s: %w", stmt, err)
		}
	}

	store := &sqliteStore{db: db, cfg: cfg, log: log}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *sqliteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    file TEXT NOT NULL,
    started_ns INTEGER NOT NULL,
    finished_ns INTEGER NOT NULL,
    base_url TEXT,
    passed INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    overrides INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_ns DESC);

CREATE TABLE IF NOT EXISTS results (
    run_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    method TEXT NOT NULL,
    url TEXT NOT NULL,
    expected_status INTEGER,
    actual_status INTEGER,
    passed INTEGER NOT NULL,
    diff TEXT,
    PRIMARY KEY (run_id, idx)
);
`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun stores the run with its results and prunes old runs
func (s *sqliteStore) RecordRun(run *Run) (err error) {
	if run == nil {
		return fmt.Errorf("run is nil")
	}
	if strings.TrimSpace(run.ID) == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = StatusPassed
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
        id, file, started_ns, finished_ns, base_url, passed, failed, overrides, status
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.File,
		run.StartedAt.UTC().UnixNano(),
		run.FinishedAt.UTC().UnixNano(),
		run.BaseURL,
		run.Passed,
		run.Failed,
		run.Overrides,
		run.Status,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, res := range run.Results {
		res.RunID = run.ID
		_, err = tx.ExecContext(ctx, `INSERT INTO results (
            run_id, idx, method, url, expected_status, actual_status, passed, diff
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID,
			res.Index,
			res.Method,
			res.URL,
			res.ExpectedStatus,
			res.ActualStatus,
			boolToInt(res.Passed),
			res.Diff,
		)
		if err != nil {
			return fmt.Errorf("insert result %d: %w", res.Index, err)
		}
	}

	if err = s.prune(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) prune(ctx context.Context, tx *sql.Tx) error {
	if s.cfg.MaxRuns <= 0 {
		return nil
	}
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM runs").Scan(&count); err != nil {
		return fmt.Errorf("count runs: %w", err)
	}
	excess := count - s.cfg.MaxRuns
	if excess <= 0 {
		return nil
	}
	const oldest = "SELECT id FROM runs ORDER BY started_ns ASC LIMIT ?"
	if _, err := tx.ExecContext(ctx, "DELETE FROM results WHERE run_id IN ("+oldest+")", excess); err != nil {
		return fmt.Errorf("prune results: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id IN ("+oldest+")", excess); err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	if s.log != nil {
		s.log.Debug("Pruned run history", "removed", excess)
	}
	return nil
}

// ListRuns returns the newest runs first, without their results
func (s *sqliteStore) ListRuns(limit int) ([]*Run, error) {
	ctx := context.Background()
	query := "SELECT id, file, started_ns, finished_ns, base_url, passed, failed, overrides, status FROM runs ORDER BY started_ns DESC"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// Results returns the per-request results of a run in replay order
func (s *sqliteStore) Results(runID string) ([]*Result, error) {
	ctx := context.Background()
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, idx, method, url, expected_status, actual_status, passed, diff
        FROM results WHERE run_id = ? ORDER BY idx ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	return result, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanRun(scanner interface {
	Scan(dest ...interface{}) error
}) (*Run, error) {
	var (
		run      Run
		started  int64
		finished int64
		baseURL  sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.File,
		&started,
		&finished,
		&baseURL,
		&run.Passed,
		&run.Failed,
		&run.Overrides,
		&run.Status,
	); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, started).UTC()
	run.FinishedAt = time.Unix(0, finished).UTC()
	run.BaseURL = baseURL.String
	return &run, nil
}

func scanResult(scanner interface {
	Scan(dest ...interface{}) error
}) (*Result, error) {
	var (
		res      Result
		expected sql.NullInt64
		actual   sql.NullInt64
		passed   int64
		diff     sql.NullString
	)
	if err := scanner.Scan(
		&res.RunID,
		&res.Index,
		&res.Method,
		&res.URL,
		&expected,
		&actual,
		&passed,
		&diff,
	); err != nil {
		return nil, err
	}
	res.ExpectedStatus = int(expected.Int64)
	res.ActualStatus = int(actual.Int64)
	res.Passed = passed == 1
	res.Diff = diff.String
	return &res, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
