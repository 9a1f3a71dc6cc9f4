package progress

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	values []int
	stages []string
}

func (r *recorder) emit(stage string, v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
	r.values = append(r.values, v)
}

func (r *recorder) snapshot() ([]string, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stages...), append([]int(nil), r.values...)
}

func TestEstimatorMonotonicAndBounded(t *testing.T) {
	var got []int
	last := Estimator{Interval: 2 * time.Millisecond}.Run(context.Background(), -10, 150, 40*time.Millisecond, func(v int) {
		got = append(got, v)
	})
	if last != 100 {
		t.Fatalf("last = %d, want 100", last)
	}
	if got[0] != 0 {
		t.Fatalf("first value = %d, want 0", got[0])
	}
	for i, v := range got {
		if v < 0 || v > 100 {
			t.Fatalf("value %d out of range", v)
		}
		if i > 0 && v < got[i-1] {
			t.Fatalf("value decreased: %v", got)
		}
	}
}

func TestEstimatorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int)
	go func() {
		done <- Estimator{Interval: time.Millisecond}.Run(ctx, 0, 100, time.Hour, func(int) {})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case last := <-done:
		if last >= 100 {
			t.Fatalf("cancelled run reached %d", last)
		}
	case <-time.After(time.Second):
		t.Fatalf("estimator did not stop after cancel")
	}
}

func TestEstimatorZeroDuration(t *testing.T) {
	var got []int
	Estimator{}.Run(context.Background(), 10, 60, 0, func(v int) { got = append(got, v) })
	if len(got) != 2 || got[0] != 10 || got[1] != 60 {
		t.Fatalf("got %v", got)
	}
}

func TestTrackerSnapsToHundredAndStopsTimer(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(Estimator{Interval: time.Millisecond}, rec.emit)

	tr.Begin("synthesizing-image", time.Hour)
	time.Sleep(15 * time.Millisecond)
	tr.Complete()

	_, values := rec.snapshot()
	if values[len(values)-1] != 100 {
		t.Fatalf("final value = %d, want 100", values[len(values)-1])
	}
	countAfter := len(values)
	time.Sleep(10 * time.Millisecond)
	if _, later := rec.snapshot(); len(later) != countAfter {
		t.Fatalf("timer kept emitting after Complete")
	}
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			t.Fatalf("progress decreased within stage: %v", values)
		}
	}
}

func TestTrackerResetsPerStage(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(Estimator{Interval: time.Millisecond}, rec.emit)

	tr.Begin("synthesizing-image", 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	tr.Complete()
	tr.Begin("synthesizing-video", time.Hour)
	tr.Abort()

	stages, values := rec.snapshot()
	var sawVideoZero bool
	for i, s := range stages {
		if s == "synthesizing-video" {
			if values[i] == 0 {
				sawVideoZero = true
			}
			if values[i] == 100 {
				t.Fatalf("aborted stage must not snap to 100")
			}
		}
		if s == "synthesizing-image" && values[i] > 100 {
			t.Fatalf("out of range value %d", values[i])
		}
	}
	if !sawVideoZero {
		t.Fatalf("video stage did not start at 0: %v %v", stages, values)
	}
	if stage, v := tr.Value(); stage != "synthesizing-video" || v == 100 {
		t.Fatalf("Value = (%s, %d)", stage, v)
	}
}

func TestTrackerNeverExceedsCeilingBeforeComplete(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(Estimator{Interval: time.Millisecond}, rec.emit)
	tr.Begin("synthesizing-image", 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if _, v := tr.Value(); v > DefaultCeiling {
		t.Fatalf("value %d exceeded ceiling before completion", v)
	}
	tr.Complete()
	if _, v := tr.Value(); v != 100 {
		t.Fatalf("value = %d after Complete", v)
	}
}
