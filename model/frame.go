package model

import "time"

// CameraMode is the camera focus controller state.
type CameraMode int

const (
	CameraAuto CameraMode = iota
	CameraManual
)

// String returns "auto" or "manual".
func (m CameraMode) String() string {
	if m == CameraManual {
		return "manual"
	}
	return "auto"
}

// BodyState is one body's contribution to a frame.
type BodyState struct {
	ID          string
	Name        string
	Kind        BodyKind
	Position    Waypoint
	Orientation *Orientation // nil when the body's policy is OrientationNone
}

// Frame is the render sink tuple for one clock instant: every visible body's
// position, the body the camera should follow and the current phase label.
type Frame struct {
	Elapsed float64
	Epoch   time.Time // mission epoch; Epoch + Elapsed is the wall instant
	Phase   string

	Bodies  []BodyState
	Tracked string
	Mode    CameraMode
}

// Instant returns the wall-clock time the frame represents.
func (f Frame) Instant() time.Time {
	return f.Epoch.Add(time.Duration(f.Elapsed * float64(time.Second)))
}

// Body returns the state for id, if present in the frame.
func (f Frame) Body(id string) (BodyState, bool) {
	for _, b := range f.Bodies {
		if b.ID == id {
			return b, true
		}
	}
	return BodyState{}, false
}
