package hud

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
	"github.com/signalsfoundry/mission-trajectory-sim/timectrl"
)

var testEpoch = time.Date(2027, 3, 1, 6, 0, 0, 0, time.UTC)

// fakeControls applies the inputs to a real clock and records them.
type fakeControls struct {
	clock   *timectrl.MissionClock
	toggles int
	scrubs  []float64
}

func (f *fakeControls) Toggle() model.CameraMode {
	f.toggles++
	return model.CameraManual
}

func (f *fakeControls) Scrub(t float64) float64 {
	t = f.clock.Scrub(t)
	f.scrubs = append(f.scrubs, t)
	return t
}

func (f *fakeControls) SetRate(rate float64) { f.clock.SetRate(rate) }

func (f *fakeControls) TogglePause() bool {
	f.clock.SetPaused(!f.clock.Paused())
	return f.clock.Paused()
}

func newTestHUD(t *testing.T) (*HUD, *fakeControls, tcell.SimulationScreen) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("Failed to init screen: %v", err)
	}
	t.Cleanup(screen.Fini)
	screen.SetSize(100, 24)

	clock := timectrl.NewMissionClock(testEpoch, 0, 182144, timectrl.LoopNone)
	clock.AdvanceTo(3000)
	ctl := &fakeControls{clock: clock}
	return New(screen, ctl, clock), ctl, screen
}

func TestHandleKeyMapsInputs(t *testing.T) {
	h, ctl, _ := newTestHUD(t)

	tests := []struct {
		name string
		ev   *tcell.EventKey
		want Action
		now  float64
	}{
		{"right", tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone), ActionScrub, 3060},
		{"shift right", tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModShift), ActionScrub, 3660},
		{"left", tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModNone), ActionScrub, 3600},
		{"shift left", tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModShift), ActionScrub, 3000},
		{"toggle", tcell.NewEventKey(tcell.KeyRune, 'c', tcell.ModNone), ActionToggleCamera, 3000},
		{"unbound", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone), ActionNone, 3000},
	}
	for _, tt := range tests {
		if got := h.HandleKey(tt.ev); got != tt.want {
			t.Fatalf("%s: action = %v, want %v", tt.name, got, tt.want)
		}
		if now := ctl.clock.Now(); now != tt.now {
			t.Fatalf("%s: clock at %v, want %v", tt.name, now, tt.now)
		}
	}
	if ctl.toggles != 1 || len(ctl.scrubs) != 4 {
		t.Fatalf("toggles=%d scrubs=%v", ctl.toggles, ctl.scrubs)
	}
}

func TestScrubClampsAtMissionStart(t *testing.T) {
	h, ctl, _ := newTestHUD(t)
	for i := 0; i < 6; i++ {
		h.HandleKey(tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModShift))
	}
	if now := ctl.clock.Now(); now != 0 {
		t.Fatalf("clock at %v, want 0", now)
	}
}

func TestRateAndPauseKeys(t *testing.T) {
	h, ctl, _ := newTestHUD(t)

	h.HandleKey(tcell.NewEventKey(tcell.KeyRune, '+', tcell.ModNone))
	h.HandleKey(tcell.NewEventKey(tcell.KeyRune, '+', tcell.ModNone))
	if r := ctl.clock.Rate(); r != 4 {
		t.Fatalf("rate = %v, want 4", r)
	}
	h.HandleKey(tcell.NewEventKey(tcell.KeyRune, '-', tcell.ModNone))
	if r := ctl.clock.Rate(); r != 2 {
		t.Fatalf("rate = %v, want 2", r)
	}

	if got := h.HandleKey(tcell.NewEventKey(tcell.KeyRune, ' ', tcell.ModNone)); got != ActionPause {
		t.Fatalf("space = %v, want ActionPause", got)
	}
	if !ctl.clock.Paused() {
		t.Fatalf("clock should be paused")
	}
}

func TestQuitKeys(t *testing.T) {
	h, _, _ := newTestHUD(t)
	for _, ev := range []*tcell.EventKey{
		tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone),
		tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone),
		tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl),
	} {
		if got := h.HandleKey(ev); got != ActionQuit {
			t.Fatalf("key %v: action = %v, want ActionQuit", ev.Name(), got)
		}
	}
}

func TestNextRate(t *testing.T) {
	tests := []struct {
		rate, factor, want float64
	}{
		{1, 2, 2},
		{0, 2, 1},
		{-4, 2, -8},
		{4096, 2, 4096},
		{1.0 / 64, 0.5, 1.0 / 64},
	}
	for _, tt := range tests {
		if got := nextRate(tt.rate, tt.factor); got != tt.want {
			t.Fatalf("nextRate(%v, %v) = %v, want %v", tt.rate, tt.factor, got, tt.want)
		}
	}
}

func TestDrawShowsTrackedBody(t *testing.T) {
	h, _, screen := newTestHUD(t)
	h.Draw(model.Frame{
		Elapsed: 3344,
		Epoch:   testEpoch,
		Phase:   "upper-stage-ascent",
		Tracked: "upper-stage",
		Bodies: []model.BodyState{
			{ID: "carrier", Kind: model.BodyKindAircraft, Position: model.Waypoint{Lon: -17, Lat: 14.7}},
			{ID: "upper-stage", Kind: model.BodyKindLauncher, Position: model.Waypoint{Lon: -16.5, Lat: 4.1, Alt: 120000}},
		},
	})

	header := screenRow(screen, 0)
	if !strings.HasPrefix(header, "T+00:55:44") || !strings.Contains(header, "upper-stage-ascent") {
		t.Fatalf("header = %q", header)
	}
	tracked := screenRow(screen, 4)
	if !strings.HasPrefix(tracked, "> upper-stage") || !strings.Contains(tracked, "alt     120.0 km") {
		t.Fatalf("tracked row = %q", tracked)
	}
	if mainc, _, style, _ := screen.GetContent(0, 4); mainc != '>' || style != styleTracked {
		t.Fatalf("tracked marker = %q with style %v", mainc, style)
	}
	if row := screenRow(screen, 3); !strings.HasPrefix(row, "  carrier") {
		t.Fatalf("carrier row = %q", row)
	}
}

// fixedClock is a paused clock stopped at one instant.
type fixedClock struct {
	elapsed float64
	rate    float64
}

func (c fixedClock) Now() float64    { return c.elapsed }
func (c fixedClock) Time() time.Time { return testEpoch.Add(time.Duration(c.elapsed * float64(time.Second))) }
func (c fixedClock) Rate() float64   { return c.rate }
func (c fixedClock) Paused() bool    { return true }

func TestDrawReadsPlaybackClock(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("Failed to init screen: %v", err)
	}
	t.Cleanup(screen.Fini)
	screen.SetSize(100, 24)

	clock := fixedClock{elapsed: 3944, rate: 8}
	ctl := &fakeControls{clock: timectrl.NewMissionClock(testEpoch, 0, 182144, timectrl.LoopNone)}
	h := New(screen, ctl, clock)
	h.Draw(model.Frame{Elapsed: 3900, Epoch: testEpoch, Phase: "deployment", Mode: model.CameraAuto, Tracked: "upper-stage"})

	status := screenRow(screen, 1)
	for _, want := range []string{"rate x8", "clock 07:05:44Z", "-> upper-stage", "PAUSED"} {
		if !strings.Contains(status, want) {
			t.Fatalf("status row %q missing %q", status, want)
		}
	}

	h.HandleKey(tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone))
	if len(ctl.scrubs) != 1 || ctl.scrubs[0] != 4004 {
		t.Fatalf("scrubs = %v, want [4004]", ctl.scrubs)
	}
	h.HandleKey(tcell.NewEventKey(tcell.KeyRune, '-', tcell.ModNone))
	if r := ctl.clock.Rate(); r != 4 {
		t.Fatalf("rate = %v, want 4", r)
	}
}

func TestRunQuitsOnKey(t *testing.T) {
	h, _, screen := newTestHUD(t)
	frames := make(chan model.Frame, 1)
	frames <- model.Frame{Elapsed: 10, Epoch: testEpoch, Phase: "carrier-flight"}

	errCh := make(chan error, 1)
	go func() { errCh <- h.Run(context.Background(), frames) }()

	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return after q")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	h, _, _ := newTestHUD(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.Run(ctx, make(chan model.Frame)) }()
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

func screenRow(screen tcell.SimulationScreen, y int) string {
	width, _ := screen.Size()
	var b strings.Builder
	for x := 0; x < width; x++ {
		mainc, _, _, _ := screen.GetContent(x, y)
		if mainc == 0 {
			mainc = ' '
		}
		b.WriteRune(mainc)
	}
	return strings.TrimRight(b.String(), " ")
}
