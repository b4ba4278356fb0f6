package timectrl

import (
	"math"
	"sync"
	"time"
)

// LoopPolicy decides what the clock does when a step crosses its bounds.
type LoopPolicy int

const (
	// LoopNone clamps to the bounds and keeps running at the edge.
	LoopNone LoopPolicy = iota
	// LoopRepeat wraps around to the opposite bound.
	LoopRepeat
	// LoopStop clamps to the bound and pauses the clock.
	LoopStop
)

// String returns the policy name used in configuration.
func (p LoopPolicy) String() string {
	switch p {
	case LoopRepeat:
		return "repeat"
	case LoopStop:
		return "stop"
	default:
		return "none"
	}
}

// ParseLoopPolicy maps a configuration string to a LoopPolicy, defaulting to
// LoopStop.
func ParseLoopPolicy(s string) LoopPolicy {
	switch s {
	case "none", "clamp":
		return LoopNone
	case "repeat", "loop":
		return LoopRepeat
	default:
		return LoopStop
	}
}

// MissionClock is the single source of simulated time. It holds elapsed
// seconds since EpochStart and is advanced externally, either directly via
// AdvanceTo or through Step by a driver such as TimeController.
//
// AdvanceTo accepts any value, including earlier ones, so UI rewinding works;
// downstream consumers must treat queries as pure functions of elapsed time.
type MissionClock struct {
	mu sync.RWMutex

	epochStart time.Time
	elapsed    float64
	rate       float64
	paused     bool
	finished   bool
	loop       LoopPolicy

	// bounds of the scrubbable range; stop <= start means unbounded.
	start float64
	stop  float64
}

// NewMissionClock constructs a clock at elapsed == start running at 1x.
func NewMissionClock(epoch time.Time, start, stop float64, loop LoopPolicy) *MissionClock {
	return &MissionClock{
		epochStart: epoch,
		elapsed:    start,
		rate:       1,
		loop:       loop,
		start:      start,
		stop:       stop,
	}
}

// Now returns the current elapsed seconds.
func (c *MissionClock) Now() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.elapsed
}

// Epoch returns the wall-clock instant that elapsed == 0 maps to.
func (c *MissionClock) Epoch() time.Time {
	return c.epochStart
}

// Time returns EpochStart + Now as a wall-clock instant.
func (c *MissionClock) Time() time.Time {
	return c.epochStart.Add(time.Duration(c.Now() * float64(time.Second)))
}

// AdvanceTo sets the elapsed time verbatim.
func (c *MissionClock) AdvanceTo(elapsed float64) {
	c.mu.Lock()
	c.elapsed = elapsed
	c.mu.Unlock()
}

// Scrub moves the clock to elapsed, clamped to the clock bounds. It is the
// only way playback jumps; a scrub also clears a LoopStop pause.
func (c *MissionClock) Scrub(elapsed float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = c.clamp(elapsed)
	c.paused = false
	c.finished = false
	return c.elapsed
}

// Rate returns the playback multiplier. Negative rates play backwards.
func (c *MissionClock) Rate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate
}

// SetRate changes the playback multiplier.
func (c *MissionClock) SetRate(rate float64) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return
	}
	c.mu.Lock()
	c.rate = rate
	c.mu.Unlock()
}

// Paused reports whether Step is currently ignored.
func (c *MissionClock) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// Finished reports whether a LoopStop clock has reached a bound. A scrub
// clears the flag.
func (c *MissionClock) Finished() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.finished
}

// SetPaused pauses or resumes Step.
func (c *MissionClock) SetPaused(paused bool) {
	c.mu.Lock()
	c.paused = paused
	c.mu.Unlock()
}

// Bounds returns the scrubbable range.
func (c *MissionClock) Bounds() (start, stop float64) {
	return c.start, c.stop
}

// Step advances the clock by wall*rate and applies the loop policy. It
// returns the new elapsed value.
func (c *MissionClock) Step(wall time.Duration) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return c.elapsed
	}

	next := c.elapsed + wall.Seconds()*c.rate
	if !c.bounded() {
		c.elapsed = next
		return c.elapsed
	}

	switch c.loop {
	case LoopRepeat:
		span := c.stop - c.start
		off := math.Mod(next-c.start, span)
		if off < 0 {
			off += span
		}
		c.elapsed = c.start + off
	case LoopStop:
		if (c.rate > 0 && next >= c.stop) || (c.rate < 0 && next <= c.start) {
			c.paused = true
			c.finished = true
		}
		c.elapsed = c.clamp(next)
	default:
		c.elapsed = c.clamp(next)
	}
	return c.elapsed
}

func (c *MissionClock) bounded() bool {
	return c.stop > c.start
}

func (c *MissionClock) clamp(v float64) float64 {
	if !c.bounded() {
		return v
	}
	if v < c.start {
		return c.start
	}
	if v > c.stop {
		return c.stop
	}
	return v
}
