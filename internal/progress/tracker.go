package progress

import (
	"context"
	"sync"
	"time"
)

// DefaultCeiling is the highest value the cosmetic interpolation may reach
// before the stage actually settles.
const DefaultCeiling = 95

// EmitFunc receives progress updates for the named stage.
type EmitFunc func(stage string, value int)

// Tracker owns the progress of one run. Begin starts an interpolation for a
// stage, Complete and Abort settle it. At most one interpolation goroutine
// exists at a time and it is always joined before the tracker moves on.
type Tracker struct {
	est     Estimator
	ceiling int
	emit    EmitFunc

	mu     sync.Mutex
	stage  string
	value  int
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates a tracker. emit is never called with the tracker's lock held.
func NewTracker(est Estimator, emit EmitFunc) *Tracker {
	if emit == nil {
		emit = func(string, int) {}
	}
	return &Tracker{est: est, ceiling: DefaultCeiling, emit: emit}
}

// Begin resets progress to 0 for stage and animates toward the ceiling over
// expected. Any running interpolation is stopped first.
func (t *Tracker) Begin(stage string, expected time.Duration) {
	t.stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.stage = stage
	t.value = 0
	t.cancel = cancel
	t.done = done
	ceiling := t.ceiling
	t.mu.Unlock()

	go func() {
		defer close(done)
		t.est.Run(ctx, 0, ceiling, expected, func(v int) {
			t.advance(gen, v)
		})
	}()
}

// Complete stops the interpolation, waits for it, and snaps to 100.
func (t *Tracker) Complete() {
	t.stop()
	t.mu.Lock()
	stage := t.stage
	changed := t.value != 100
	t.value = 100
	t.mu.Unlock()
	if changed {
		t.emit(stage, 100)
	}
}

// Abort stops the interpolation and leaves the value where it is.
func (t *Tracker) Abort() {
	t.stop()
}

// Value returns the current stage and progress.
func (t *Tracker) Value() (string, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage, t.value
}

func (t *Tracker) advance(gen uint64, v int) {
	v = Clamp(v)
	t.mu.Lock()
	if gen != t.gen || v < t.value {
		t.mu.Unlock()
		return
	}
	t.value = v
	stage := t.stage
	t.mu.Unlock()
	t.emit(stage, v)
}

func (t *Tracker) stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
