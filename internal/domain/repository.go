package domain

import "context"

// RunRepository shares run snapshots between API instances.
type RunRepository interface {
	Save(ctx context.Context, run Run) error
	Get(ctx context.Context, id string) (Run, error)
}

// OutcomeRecorder persists the terminal outcome of a run for reliability
// reporting.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, run Run) error
}
