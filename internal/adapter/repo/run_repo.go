package repo

import (
	"context"
	"fmt"
	"time"

	"bogofit/internal/domain"
	"bogofit/internal/infra"
	"bogofit/internal/sqlinline"
)

// RunLedgerPG records terminal run outcomes in fitting_runs.
type RunLedgerPG struct {
	sql infra.SQLExecutor
}

// NewRunLedger creates a ledger backed by PostgreSQL.
func NewRunLedger(sql infra.SQLExecutor) *RunLedgerPG {
	return &RunLedgerPG{sql: sql}
}

// EnsureSchema creates the ledger table.
func (r *RunLedgerPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QEnsureFittingRuns); err != nil {
		return fmt.Errorf("repo: ensure fitting_runs: %w", err)
	}
	return nil
}

// RecordOutcome upserts the run. Only terminal fields change on conflict.
func (r *RunLedgerPG) RecordOutcome(ctx context.Context, run domain.Run) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertFittingRun,
		run.ID,
		run.Engine,
		string(run.Stage),
		run.FailureKind,
		run.GeneratedImage,
		run.GeneratedVideo,
		run.VideoRequested,
		run.ImageLenient,
		run.VideoLenient,
		run.ProductTitle,
		run.Locale,
		run.CreatedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("repo: record outcome: %w", err)
	}
	return nil
}

// Get loads a recorded outcome.
func (r *RunLedgerPG) Get(ctx context.Context, id string) (domain.Run, error) {
	var run domain.Run
	var stage string
	err := r.sql.QueryRow(ctx, sqlinline.QSelectFittingRun, id).Scan(
		&run.ID,
		&run.Engine,
		&stage,
		&run.FailureKind,
		&run.GeneratedImage,
		&run.GeneratedVideo,
		&run.VideoRequested,
		&run.ImageLenient,
		&run.VideoLenient,
		&run.ProductTitle,
		&run.Locale,
		&run.CreatedAt,
		&run.FinishedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.Run{}, domain.ErrNotFound
		}
		return domain.Run{}, fmt.Errorf("repo: get outcome: %w", err)
	}
	run.Stage = domain.Stage(stage)
	if run.Stage == domain.StageDone {
		run.Progress = 100
	}
	return run, nil
}

// LenientStat counts runs per engine and how many needed lenient parsing.
type LenientStat struct {
	Engine  string `json:"engine"`
	Total   int64  `json:"total"`
	Lenient int64  `json:"lenient"`
}

// Rate is the lenient share of runs, 0 when there are none.
func (s LenientStat) Rate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Lenient) / float64(s.Total)
}

// LenientRate aggregates outcomes recorded since the given time.
func (r *RunLedgerPG) LenientRate(ctx context.Context, since time.Time) ([]LenientStat, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QLenientRate, since)
	if err != nil {
		return nil, fmt.Errorf("repo: lenient rate: %w", err)
	}
	defer rows.Close()

	var out []LenientStat
	for rows.Next() {
		var s LenientStat
		if err := rows.Scan(&s.Engine, &s.Total, &s.Lenient); err != nil {
			return nil, fmt.Errorf("repo: scan lenient rate: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: lenient rate rows: %w", err)
	}
	return out, nil
}

var _ domain.OutcomeRecorder = (*RunLedgerPG)(nil)
