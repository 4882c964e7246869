// Package progress produces a synthetic, time-driven progress signal for
// long-running operations that report no progress of their own.
//
// The estimator advances by a bounded random increment on each tick and holds
// below a cap until the caller signals completion. It is a heuristic for
// display: percent and ETA approximate elapsed time against an assumed total
// duration and say nothing about how far the underlying work has actually got.
package progress

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	// DefaultCap is the highest percent reachable before Complete.
	DefaultCap = 95.0
	// DefaultMaxIncrement bounds the per-tick advance in percentage points.
	DefaultMaxIncrement = 15.0
	// DefaultInterval is the tick cadence used by callers that do not configure one.
	DefaultInterval = 800 * time.Millisecond
)

// State is a point-in-time progress reading.
// ETASeconds is nil until progress first moves and again after completion.
type State struct {
	Percent    float64 `json:"percent"`
	ETASeconds *int    `json:"eta_seconds,omitempty"`
}

// IncrementFunc returns the next advance in percentage points.
// Negative values are treated as zero.
type IncrementFunc func() float64

// UniformIncrement returns an IncrementFunc drawing uniformly from [0, maxStep).
func UniformIncrement(maxStep float64) IncrementFunc {
	return func() float64 {
		return rand.Float64() * maxStep
	}
}

// Sequence returns an IncrementFunc that yields steps in order and then zero.
func Sequence(steps ...float64) IncrementFunc {
	var mu sync.Mutex
	i := 0
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(steps) {
			return 0
		}
		s := steps[i]
		i++
		return s
	}
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithIncrement replaces the default uniform increment.
func WithIncrement(fn IncrementFunc) Option {
	return func(e *Estimator) {
		if fn != nil {
			e.increment = fn
		}
	}
}

// WithCap sets the ceiling held until Complete. Values outside (0, 100] are ignored.
func WithCap(limit float64) Option {
	return func(e *Estimator) {
		if limit > 0 && limit <= 100 {
			e.cap = limit
		}
	}
}

// Estimator tracks one progress episode. It is safe for concurrent use.
type Estimator struct {
	mu        sync.Mutex
	total     time.Duration
	percent   float64
	cap       float64
	increment IncrementFunc
	completed bool
	stopped   bool
}

// Start begins an episode against an assumed total duration.
func Start(total time.Duration, opts ...Option) *Estimator {
	e := &Estimator{
		total:     max(total, 0),
		cap:       DefaultCap,
		increment: UniformIncrement(DefaultMaxIncrement),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current reading without advancing.
func (e *Estimator) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state()
}

// Tick advances by one increment, holding at the cap.
// After Complete or Cancel it returns the frozen reading.
func (e *Estimator) Tick() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.completed || e.stopped {
		return e.state()
	}

	step := max(e.increment(), 0)
	e.percent = min(e.percent+step, e.cap)
	return e.state()
}

// Complete jumps to 100 and clears the ETA, overriding the cap.
func (e *Estimator) Complete() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.completed = true
	e.percent = 100
	return e.state()
}

// Cancel freezes the estimator; later ticks do not advance it.
func (e *Estimator) Cancel() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
}

// Done reports whether the episode has been completed or cancelled.
func (e *Estimator) Done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completed || e.stopped
}

// Run ticks every interval and passes each reading to onTick until ctx is
// cancelled or the estimator is completed or cancelled. It blocks; callers
// run it in its own goroutine.
func (e *Estimator) Run(ctx context.Context, interval time.Duration, onTick func(State)) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.Done() {
				return
			}
			s := e.Tick()
			if onTick != nil {
				onTick(s)
			}
		}
	}
}

func (e *Estimator) state() State {
	s := State{Percent: e.percent}
	if e.completed || e.percent <= 0 {
		return s
	}

	elapsed := e.percent / 100 * e.total.Seconds()
	eta := max(int(math.Ceil(e.total.Seconds()-elapsed)), 0)
	s.ETASeconds = &eta
	return s
}
