package pipeline

import (
	"context"
	"sync"

	"bogofit/internal/domain"
)

// Future resolves once with the terminal snapshot of a run.
type Future struct {
	once sync.Once
	done chan struct{}
	run  domain.Run
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(run domain.Run) {
	f.once.Do(func() {
		f.run = run.Clone()
		close(f.done)
	})
}

// Done is closed when the run reaches done or failed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the run settles or ctx ends.
func (f *Future) Wait(ctx context.Context) (domain.Run, error) {
	select {
	case <-f.done:
		return f.run.Clone(), nil
	case <-ctx.Done():
		return domain.Run{}, ctx.Err()
	}
}

// Result returns the terminal snapshot without blocking.
func (f *Future) Result() (domain.Run, bool) {
	select {
	case <-f.done:
		return f.run.Clone(), true
	default:
		return domain.Run{}, false
	}
}

// Sink receives the final artifact URL of a successful run. It is called at
// most once per run and never for failed runs.
type Sink func(ctx context.Context, artifactURL string)
