package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/anansi/internal/pipeline"
)

const defaultRunsLimit = 10

// RunStore records pipeline reports in pipeline_runs.
type RunStore struct {
	pool *pgxpool.Pool
}

func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// RunRecord is one row of pipeline_runs.
type RunRecord struct {
	RunID       string                   `json:"run_id"`
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
	Outcome     string                   `json:"outcome"`
	Fetched     int                      `json:"fetched"`
	Normalized  int                      `json:"normalized"`
	New         int                      `json:"new"`
	Shown       int                      `json:"shown"`
	Error       string                   `json:"error,omitempty"`
	Sources     []pipeline.SourceSummary `json:"sources"`
}

// Duration is the elapsed time, zero while the run is unfinished.
func (r RunRecord) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// RecordRun upserts rep by run id.
func (s *RunStore) RecordRun(ctx context.Context, rep pipeline.Report) error {
	sources, err := json.Marshal(rep.Sources)
	if err != nil {
		return fmt.Errorf("encode run sources: %w", err)
	}
	if rep.Sources == nil {
		sources = []byte("[]")
	}

	var completed *time.Time
	if !rep.CompletedAt.IsZero() {
		completed = &rep.CompletedAt
	}
	var errText *string
	if rep.Error != "" {
		errText = &rep.Error
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pipeline_runs (run_id, started_at, completed_at, outcome,
			items_fetched, items_normalized, items_new, items_shown, error, sources)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)
		ON CONFLICT (run_id) DO UPDATE SET
			completed_at = EXCLUDED.completed_at,
			outcome = EXCLUDED.outcome,
			items_fetched = EXCLUDED.items_fetched,
			items_normalized = EXCLUDED.items_normalized,
			items_new = EXCLUDED.items_new,
			items_shown = EXCLUDED.items_shown,
			error = EXCLUDED.error,
			sources = EXCLUDED.sources`,
		rep.RunID, rep.StartedAt, completed, string(rep.Outcome),
		rep.Fetched, rep.Normalized, rep.New, rep.Shown, errText, string(sources),
	)
	if err != nil {
		return fmt.Errorf("insert pipeline run %s: %w", rep.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT run_id::text, started_at, completed_at, outcome, items_fetched,
			items_normalized, items_new, items_shown, COALESCE(error, ''), sources
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pipeline runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RunRecord, error) {
		var r RunRecord
		var sources []byte
		if err := row.Scan(&r.RunID, &r.StartedAt, &r.CompletedAt, &r.Outcome, &r.Fetched,
			&r.Normalized, &r.New, &r.Shown, &r.Error, &sources); err != nil {
			return r, err
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &r.Sources); err != nil {
				return r, fmt.Errorf("decode sources of run %s: %w", r.RunID, err)
			}
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan pipeline runs: %w", err)
	}
	return runs, nil
}
