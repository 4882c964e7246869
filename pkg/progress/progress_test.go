package progress_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JaimeStill/warden/pkg/progress"
)

func TestTickMonotonicAndCapped(t *testing.T) {
	e := progress.Start(5*time.Second, progress.WithIncrement(progress.UniformIncrement(15)))

	prev := 0.0
	for i := range 200 {
		s := e.Tick()
		if s.Percent < prev {
			t.Fatalf("tick %d: percent decreased from %f to %f", i, prev, s.Percent)
		}
		if s.Percent > progress.DefaultCap {
			t.Fatalf("tick %d: percent %f exceeds cap", i, s.Percent)
		}
		prev = s.Percent
	}
}

func TestTickSequence(t *testing.T) {
	e := progress.Start(
		10*time.Second,
		progress.WithIncrement(progress.Sequence(10, 0, 25, -5, 80)),
	)

	want := []float64{10, 10, 35, 35, 95, 95}
	for i, w := range want {
		if got := e.Tick().Percent; got != w {
			t.Errorf("tick %d: percent = %f, want %f", i, got, w)
		}
	}
}

func TestETA(t *testing.T) {
	tests := []struct {
		name    string
		total   time.Duration
		steps   []float64
		wantETA *int
	}{
		{"no movement has no eta", 5 * time.Second, []float64{0}, nil},
		{"half way", 5 * time.Second, []float64{50}, intPtr(3)},
		{"ceil of remaining", 5 * time.Second, []float64{10}, intPtr(5)},
		{"at cap", 5 * time.Second, []float64{95}, intPtr(1)},
		{"zero total clamps", 0, []float64{40}, intPtr(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := progress.Start(tt.total, progress.WithIncrement(progress.Sequence(tt.steps...)))
			s := e.Tick()

			switch {
			case tt.wantETA == nil && s.ETASeconds != nil:
				t.Errorf("eta = %d, want nil", *s.ETASeconds)
			case tt.wantETA != nil && s.ETASeconds == nil:
				t.Errorf("eta = nil, want %d", *tt.wantETA)
			case tt.wantETA != nil && *s.ETASeconds != *tt.wantETA:
				t.Errorf("eta = %d, want %d", *s.ETASeconds, *tt.wantETA)
			}
		})
	}
}

func TestCompleteOverridesCap(t *testing.T) {
	e := progress.Start(5*time.Second, progress.WithIncrement(progress.Sequence(60, 60)))
	e.Tick()
	e.Tick()

	s := e.Complete()
	if s.Percent != 100 {
		t.Errorf("percent = %f, want 100", s.Percent)
	}
	if s.ETASeconds != nil {
		t.Errorf("eta = %d, want nil after complete", *s.ETASeconds)
	}

	if after := e.Tick(); after.Percent != 100 {
		t.Errorf("tick after complete = %f, want 100", after.Percent)
	}
}

func TestCancelFreezes(t *testing.T) {
	e := progress.Start(5*time.Second, progress.WithIncrement(progress.Sequence(20, 20, 20)))
	e.Tick()
	e.Cancel()

	if got := e.Tick().Percent; got != 20 {
		t.Errorf("percent after cancel = %f, want 20", got)
	}
	if !e.Done() {
		t.Error("Done() = false after cancel")
	}
}

func TestWithCap(t *testing.T) {
	e := progress.Start(time.Second, progress.WithCap(50), progress.WithIncrement(progress.Sequence(40, 40)))
	e.Tick()
	if got := e.Tick().Percent; got != 50 {
		t.Errorf("percent = %f, want 50", got)
	}

	ignored := progress.Start(time.Second, progress.WithCap(150), progress.WithIncrement(progress.Sequence(120)))
	if got := ignored.Tick().Percent; got != progress.DefaultCap {
		t.Errorf("percent = %f, want default cap", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	e := progress.Start(time.Second, progress.WithIncrement(progress.Sequence(1, 1, 1, 1, 1, 1, 1, 1)))

	var ticks atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		e.Run(ctx, time.Millisecond, func(progress.State) { ticks.Add(1) })
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for ticks.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("no ticks observed")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func TestRunStopsOnComplete(t *testing.T) {
	e := progress.Start(time.Second)
	e.Complete()

	done := make(chan struct{})
	go func() {
		e.Run(context.Background(), time.Millisecond, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return for a completed estimator")
	}
}

func intPtr(v int) *int { return &v }
