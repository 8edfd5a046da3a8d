package storage

import (
	"errors"
	"time"

	"github.com/funnyzak/reqtape/internal/config"
	"github.com/funnyzak/reqtape/internal/logger"
)

// Run statuses
const (
	StatusPassed   = "passed"
	StatusFailed   = "failed"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// Run is one replay of one report file.
type Run struct {
	ID         string    `json:"id"`
	File       string    `json:"file"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	BaseURL    string    `json:"base_url"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	Overrides  int       `json:"overrides"`
	Status     string    `json:"status"`
	Results    []*Result `json:"results,omitempty"`
}

// Duration is the wall time of the run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Result is the outcome of one replayed request inside a run.
type Result struct {
	RunID          string `json:"run_id"`
	Index          int    `json:"index"`
	Method         string `json:"method"`
	URL            string `json:"url"`
	ExpectedStatus int    `json:"expected_status"`
	ActualStatus   int    `json:"actual_status"`
	Passed         bool   `json:"passed"`
	Diff           string `json:"diff,omitempty"`
}

// Store defines the persistence contract for replay runs.
type Store interface {
	RecordRun(*Run) error
	ListRuns(limit int) ([]*Run, error)
	Results(runID string) ([]*Result, error)
	Close() error
}

// New opens the run history described by cfg.
func New(cfg *config.StorageConfig, log logger.Logger) (Store, error) {
	if cfg == nil {
		return nil, errors.New("storage config is nil")
	}
	return newSQLiteStore(cfg, log)
}
