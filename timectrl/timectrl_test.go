package timectrl

import (
	"context"
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2025, time.October, 2, 9, 0, 0, 0, time.UTC)

func TestMissionClockAdvanceToIsVerbatim(t *testing.T) {
	c := NewMissionClock(epoch, 0, 1000, LoopStop)

	for _, v := range []float64{10, 500, 3, 2000, -5} {
		c.AdvanceTo(v)
		if got := c.Now(); got != v {
			t.Fatalf("Now() after AdvanceTo(%v) = %v", v, got)
		}
	}
}

func TestMissionClockTimeAddsEpoch(t *testing.T) {
	c := NewMissionClock(epoch, 0, 0, LoopNone)
	c.AdvanceTo(90.5)

	want := epoch.Add(90*time.Second + 500*time.Millisecond)
	if got := c.Time(); !got.Equal(want) {
		t.Fatalf("Time() = %v, want %v", got, want)
	}
}

func TestMissionClockScrubClamps(t *testing.T) {
	c := NewMissionClock(epoch, 0, 100, LoopStop)

	if got := c.Scrub(150); got != 100 {
		t.Fatalf("Scrub(150) = %v, want 100", got)
	}
	if got := c.Scrub(-20); got != 0 {
		t.Fatalf("Scrub(-20) = %v, want 0", got)
	}
	if got := c.Scrub(42); got != 42 {
		t.Fatalf("Scrub(42) = %v, want 42", got)
	}
}

func TestMissionClockStepAppliesRate(t *testing.T) {
	c := NewMissionClock(epoch, 0, 0, LoopNone)
	c.SetRate(10)

	c.Step(time.Second)
	c.Step(500 * time.Millisecond)
	if got := c.Now(); got != 15 {
		t.Fatalf("Now() = %v, want 15", got)
	}

	c.SetRate(-2)
	c.Step(time.Second)
	if got := c.Now(); got != 13 {
		t.Fatalf("Now() after reverse step = %v, want 13", got)
	}
}

func TestMissionClockLoopPolicies(t *testing.T) {
	tests := []struct {
		name         string
		loop         LoopPolicy
		rate         float64
		want         float64
		wantFinished bool
	}{
		{name: "clamp", loop: LoopNone, rate: 30, want: 100},
		{name: "repeat", loop: LoopRepeat, rate: 30, want: 20},
		{name: "stop", loop: LoopStop, rate: 30, want: 100, wantFinished: true},
		{name: "repeat backwards", loop: LoopRepeat, rate: -30, want: 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewMissionClock(epoch, 0, 100, tt.loop)
			c.Scrub(90)
			c.SetRate(tt.rate)
			c.Step(time.Second)
			if got := c.Now(); got != tt.want {
				t.Fatalf("Now() = %v, want %v", got, tt.want)
			}
			if got := c.Finished(); got != tt.wantFinished {
				t.Fatalf("Finished() = %v, want %v", got, tt.wantFinished)
			}
		})
	}
}

func TestMissionClockPauseAndScrubResumes(t *testing.T) {
	c := NewMissionClock(epoch, 0, 100, LoopStop)
	c.SetPaused(true)
	c.Step(time.Second)
	if got := c.Now(); got != 0 {
		t.Fatalf("paused clock moved to %v", got)
	}

	c.Scrub(10)
	c.Step(time.Second)
	if got := c.Now(); got != 11 {
		t.Fatalf("Now() after scrub+step = %v, want 11", got)
	}
}

func TestTimeControllerStartUpdatesNow(t *testing.T) {
	c := NewMissionClock(epoch, 0, 15, LoopStop)
	tc := NewTimeController(c, 5*time.Second, Accelerated)
	tc.ExitOnFinish = true

	var mu sync.Mutex
	var seen []float64
	tc.AddListener(func(elapsed float64) {
		mu.Lock()
		seen = append(seen, elapsed)
		mu.Unlock()
	})

	<-tc.Start(context.Background())

	if got := tc.Now(); got != 15 {
		t.Fatalf("Now() = %v, want 15", got)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []float64{5, 10, 15}
	if len(seen) != len(want) {
		t.Fatalf("listener saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("listener saw %v, want %v", seen, want)
		}
	}
}

func TestTimeControllerStopsOnCancel(t *testing.T) {
	c := NewMissionClock(epoch, 0, 0, LoopNone)
	tc := NewTimeController(c, time.Millisecond, RealTime)

	ctx, cancel := context.WithCancel(context.Background())
	done := tc.Start(ctx)
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("controller did not stop after cancel")
	}
	if c.Now() <= 0 {
		t.Fatalf("expected clock to have advanced, got %v", c.Now())
	}
}

func TestParseLoopPolicy(t *testing.T) {
	if ParseLoopPolicy("repeat") != LoopRepeat || ParseLoopPolicy("clamp") != LoopNone || ParseLoopPolicy("") != LoopStop {
		t.Fatalf("unexpected loop policy parsing")
	}
}
