package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock is the read side of mission time. The HUD depends on this
// rather than on a concrete clock so tests can hand it a fixed value.
type SimClock interface {
	// Now returns elapsed mission seconds.
	Now() float64
	// Time returns the wall-clock instant matching Now.
	Time() time.Time
}

// Mode describes how the TimeController advances the mission clock.
type Mode int

const (
	// RealTime steps the clock once per wall-clock Tick.
	RealTime Mode = iota
	// Accelerated steps the clock by Tick as quickly as the loop can run.
	Accelerated
)

// String returns the mode name.
func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// TimeController is the external driver of a MissionClock. Every tick it
// steps the clock (rate and loop policy are the clock's business) and
// notifies registered listeners with the new elapsed value.
type TimeController struct {
	mu    sync.RWMutex
	Clock *MissionClock
	Tick  time.Duration
	Mode  Mode

	// ExitOnFinish makes Start return once a LoopStop clock reaches a bound.
	ExitOnFinish bool

	listeners []func(elapsed float64)
}

// NewTimeController constructs a controller for clock.
func NewTimeController(clock *MissionClock, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		Clock: clock,
		Tick:  tick,
		Mode:  mode,
	}
}

// Now returns the clock's elapsed seconds. Implements SimClock.
func (tc *TimeController) Now() float64 {
	return tc.Clock.Now()
}

// Time returns the clock's wall-clock instant. Implements SimClock.
func (tc *TimeController) Time() time.Time {
	return tc.Clock.Time()
}

// AddListener registers a callback invoked on every tick. Listeners run on
// the controller goroutine, one after another.
func (tc *TimeController) AddListener(fn func(elapsed float64)) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Start runs the controller in a separate goroutine until ctx is cancelled
// or, with ExitOnFinish, the clock reports Finished. It returns a
// channel that is closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var tickC <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			tickC = ticker.C
		}

		for {
			if tickC != nil {
				select {
				case <-ctx.Done():
					return
				case <-tickC:
				}
			} else {
				select {
				case <-ctx.Done():
					return
				default:
				}
			}

			elapsed := tc.Clock.Step(tc.Tick)
			tc.notify(elapsed)

			if tc.ExitOnFinish && tc.Clock.Finished() {
				return
			}
		}
	}()
	return done
}

// Fire notifies listeners with the clock's current value without stepping.
// Used after a scrub so sinks see the new instant immediately.
func (tc *TimeController) Fire() {
	tc.notify(tc.Clock.Now())
}

func (tc *TimeController) notify(elapsed float64) {
	tc.mu.RLock()
	listeners := append([]func(float64){}, tc.listeners...)
	tc.mu.RUnlock()
	for _, fn := range listeners {
		fn(elapsed)
	}
}
