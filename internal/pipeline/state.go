package pipeline

import (
	"fmt"

	"bogofit/internal/domain"
)

var transitions = map[domain.Stage][]domain.Stage{
	domain.StageIdle:              {domain.StageSynthesizingImage},
	domain.StageSynthesizingImage: {domain.StageSynthesizingVideo, domain.StageDone, domain.StageFailed},
	domain.StageSynthesizingVideo: {domain.StageDone, domain.StageFailed},
	domain.StageDone:              {domain.StageIdle},
	domain.StageFailed:            {domain.StageIdle},
}

// CanTransition reports whether a run may move from one stage to another.
func CanTransition(from, to domain.Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns domain.ErrInvalidTransition for any move outside the
// stage graph.
func Transition(from, to domain.Stage) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
}
