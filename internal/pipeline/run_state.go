package pipeline

import (
	"context"
	"sync"
	"time"

	"bogofit/internal/domain"
	"bogofit/internal/infra"
)

// runState serializes every mutation of one run and mirrors it to the store.
type runState struct {
	mu     sync.Mutex
	run    domain.Run
	store  domain.RunRepository
	now    func() time.Time
	logger infra.Logger
}

func (s *runState) snapshot() domain.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run.Clone()
}

func (s *runState) update(ctx context.Context, fn func(r *domain.Run)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.run)
	s.saveLocked(ctx)
}

func (s *runState) transition(ctx context.Context, to domain.Stage, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := Transition(s.run.Stage, to); err != nil {
		return err
	}
	s.run.Stage = to
	s.run.StatusMessage = status
	switch {
	case to.Terminal():
		if to == domain.StageDone {
			s.run.Progress = 100
		}
		finished := s.now().UTC()
		s.run.FinishedAt = &finished
	default:
		s.run.Progress = 0
	}
	s.saveLocked(ctx)
	return nil
}

// progress applies a tracker value if it belongs to the current stage and
// does not move backwards.
func (s *runState) progress(ctx context.Context, stage domain.Stage, v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run.Stage != stage || v <= s.run.Progress {
		return
	}
	s.run.Progress = v
	s.saveLocked(ctx)
}

func (s *runState) saveLocked(ctx context.Context) {
	s.run.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, s.run.Clone()); err != nil {
		s.logger.Warn().Err(err).Msg("pipeline: save run snapshot failed")
	}
}
