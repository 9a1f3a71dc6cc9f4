// Package progress drives the cosmetic 0-100 progress value shown while a
// synthesis stage is in flight.
package progress

import (
	"context"
	"time"
)

// DefaultInterval is the emission period of the estimator.
const DefaultInterval = 50 * time.Millisecond

// Estimator interpolates between two percentages over a fixed duration.
type Estimator struct {
	Interval time.Duration
}

// Clamp bounds v to [0,100].
func Clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// Run emits non-decreasing values from `from` toward `to` until d elapses or
// ctx is cancelled, and returns the last emitted value. The first value is
// emitted immediately.
func (e Estimator) Run(ctx context.Context, from, to int, d time.Duration, emit func(int)) int {
	from, to = Clamp(from), Clamp(to)
	if to < from {
		to = from
	}
	interval := e.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	last := from
	emit(last)
	if d <= 0 || to == from {
		if to != last {
			last = to
			emit(last)
		}
		return last
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return last
		case <-ticker.C:
			elapsed := time.Since(start)
			next := to
			if elapsed < d {
				next = from + int(float64(to-from)*float64(elapsed)/float64(d))
			}
			if next > last {
				last = next
				emit(last)
			}
			if elapsed >= d {
				return last
			}
		}
	}
}
