// Package hud renders mission frames in a terminal and maps key presses to
// the playback controls.
package hud

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
	"github.com/signalsfoundry/mission-trajectory-sim/timectrl"
)

const (
	scrubStep     = 60.0  // seconds per arrow press
	scrubStepFast = 600.0 // seconds per Shift+arrow press

	minRate = 1.0 / 64
	maxRate = 4096.0
)

// Controls are the user inputs the HUD drives.
type Controls interface {
	Toggle() model.CameraMode
	Scrub(t float64) float64
	SetRate(rate float64)
	TogglePause() bool
}

// PlaybackClock is the clock state the HUD reads. *timectrl.MissionClock
// satisfies it.
type PlaybackClock interface {
	timectrl.SimClock
	Rate() float64
	Paused() bool
}

// Action names what a key press did.
type Action int

const (
	ActionNone Action = iota
	ActionToggleCamera
	ActionScrub
	ActionRate
	ActionPause
	ActionQuit
)

var (
	styleDefault = tcell.StyleDefault
	styleHeader  = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleTracked = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleDim     = tcell.StyleDefault.Foreground(tcell.ColorGray)
	stylePaused  = tcell.StyleDefault.Foreground(tcell.ColorRed).Reverse(true)
)

// HUD draws frames on a tcell screen.
type HUD struct {
	screen tcell.Screen
	ctl    Controls
	clock  PlaybackClock
}

// New wraps an initialised screen.
func New(screen tcell.Screen, ctl Controls, clock PlaybackClock) *HUD {
	return &HUD{screen: screen, ctl: ctl, clock: clock}
}

// HandleKey applies one key press.
func (h *HUD) HandleKey(ev *tcell.EventKey) Action {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return ActionQuit
	case tcell.KeyLeft, tcell.KeyRight:
		step := scrubStep
		if ev.Modifiers()&tcell.ModShift != 0 {
			step = scrubStepFast
		}
		if ev.Key() == tcell.KeyLeft {
			step = -step
		}
		h.ctl.Scrub(h.clock.Now() + step)
		return ActionScrub
	case tcell.KeyRune:
	default:
		return ActionNone
	}

	switch ev.Rune() {
	case 'q', 'Q':
		return ActionQuit
	case 'c', 'C':
		h.ctl.Toggle()
		return ActionToggleCamera
	case ' ':
		h.ctl.TogglePause()
		return ActionPause
	case '+', '=':
		h.ctl.SetRate(nextRate(h.clock.Rate(), 2))
		return ActionRate
	case '-', '_':
		h.ctl.SetRate(nextRate(h.clock.Rate(), 0.5))
		return ActionRate
	}
	return ActionNone
}

// nextRate scales rate by factor keeping its sign and magnitude within
// [minRate, maxRate]. A zero rate restarts at 1.
func nextRate(rate, factor float64) float64 {
	if rate == 0 {
		return 1
	}
	mag := math.Min(math.Max(math.Abs(rate)*factor, minRate), maxRate)
	return math.Copysign(mag, rate)
}

// Draw renders f with the current playback state.
func (h *HUD) Draw(f model.Frame) {
	h.screen.Clear()
	width, height := h.screen.Size()

	header := fmt.Sprintf("T+%s  %s  %s", formatElapsed(f.Elapsed), f.Instant().UTC().Format("2006-01-02 15:04:05Z"), f.Phase)
	h.drawText(0, 0, width, styleHeader, header)

	status := fmt.Sprintf("rate x%g  clock %s  camera %s -> %s",
		h.clock.Rate(), h.clock.Time().UTC().Format("15:04:05Z"), f.Mode, f.Tracked)
	x := h.drawText(0, 1, width, styleDefault, status)
	if h.clock.Paused() {
		h.drawText(x+2, 1, width, stylePaused, " PAUSED ")
	}

	row := 3
	for _, b := range f.Bodies {
		if row >= height-1 {
			break
		}
		style := styleDefault
		marker := "  "
		if b.ID == f.Tracked {
			style, marker = styleTracked, "> "
		}
		pos := b.Position.Normalized()
		line := fmt.Sprintf("%s%-20s %-9s lat %8.3f  lon %9.3f  alt %9.1f km", marker, b.ID, b.Kind, pos.Lat, pos.Lon, pos.Alt/1000)
		if b.Orientation != nil {
			line += fmt.Sprintf("  hdg %5.1f  pitch %5.1f", b.Orientation.HeadingDeg, b.Orientation.PitchDeg)
		}
		h.drawText(0, row, width, style, line)
		row++
	}

	h.drawText(0, height-1, width, styleDim, "c camera  <-/-> 60s  shift 600s  +/- rate  space pause  q quit")
	h.screen.Show()
}

// Run draws frames as they arrive and handles input until the user quits or
// ctx ends.
func (h *HUD) Run(ctx context.Context, frames <-chan model.Frame) error {
	events := make(chan tcell.Event, 100)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			ev := h.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if h.HandleKey(ev) == ActionQuit {
					return nil
				}
			case *tcell.EventResize:
				h.screen.Sync()
			}
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			h.Draw(f)
		}
	}
}

func (h *HUD) drawText(x, y, maxX int, style tcell.Style, text string) int {
	for _, r := range text {
		if x >= maxX {
			break
		}
		h.screen.SetContent(x, y, r, nil, style)
		x++
	}
	return x
}

func formatElapsed(elapsed float64) string {
	d := time.Duration(elapsed * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
