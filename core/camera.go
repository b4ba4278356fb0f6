package core

import (
	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// DefaultDeploymentMargin is how long, in seconds, the camera stays on the
// upper stage after deployment before moving to the satellite.
const DefaultDeploymentMargin = 60.0

// CameraThresholds are the mission instants at which the automatic camera
// changes target.
type CameraThresholds struct {
	Launch     float64
	Separation float64
	Deployment float64
	Margin     float64
}

// CameraTargets names the body followed in each part of the mission.
type CameraTargets struct {
	Carrier    string
	Combined   string
	UpperStage string
	// Satellite is followed after deployment+margin. EphemerisSatellite wins
	// while it is visible.
	Satellite          string
	EphemerisSatellite string
}

// BodyLookup reports whether a body is attached and visible at t.
type BodyLookup func(id string, t float64) bool

// CameraFocusController decides which body the camera follows. In
// CameraAuto it derives the target from mission time alone; in
// CameraManual it leaves the camera to the user.
//
// It is not safe for concurrent use; the tick goroutine owns it.
type CameraFocusController struct {
	th      CameraThresholds
	targets CameraTargets
	visible BodyLookup

	mode    model.CameraMode
	tracked string
}

// NewCameraFocusController returns a controller in CameraAuto with no
// target. visible may be nil, in which case every body counts as visible.
func NewCameraFocusController(th CameraThresholds, targets CameraTargets, visible BodyLookup) *CameraFocusController {
	if visible == nil {
		visible = func(string, float64) bool { return true }
	}
	return &CameraFocusController{th: th, targets: targets, visible: visible}
}

// ThresholdsFromPhases derives camera thresholds from the phase table: launch
// is the start of boost, separation the start of upper-stage-ascent and
// deployment the start of deployment.
func ThresholdsFromPhases(pt *PhaseTable, margin float64) (CameraThresholds, error) {
	launch, err := pt.StartOf(PhaseBoost)
	if err != nil {
		return CameraThresholds{}, err
	}
	sep, err := pt.StartOf(PhaseUpperStageAscent)
	if err != nil {
		return CameraThresholds{}, err
	}
	deploy, err := pt.StartOf(PhaseDeployment)
	if err != nil {
		return CameraThresholds{}, err
	}
	return CameraThresholds{Launch: launch, Separation: sep, Deployment: deploy, Margin: margin}, nil
}

// Thresholds returns the controller's thresholds.
func (c *CameraFocusController) Thresholds() CameraThresholds { return c.th }

// Mode returns the current mode.
func (c *CameraFocusController) Mode() model.CameraMode { return c.mode }

// Tracked returns the body currently followed, or "" when none.
func (c *CameraFocusController) Tracked() string { return c.tracked }

// Resolve returns the body the automatic camera should follow at t, or ""
// when no candidate is visible at t. It does not change state.
func (c *CameraFocusController) Resolve(t float64) string {
	var candidates []string
	switch {
	case t < c.th.Launch:
		candidates = []string{c.targets.Carrier}
	case t < c.th.Separation:
		candidates = []string{c.targets.Combined}
	case t < c.th.Deployment+c.th.Margin:
		candidates = []string{c.targets.UpperStage}
	default:
		candidates = []string{c.targets.EphemerisSatellite, c.targets.Satellite}
	}
	for _, id := range candidates {
		if id != "" && c.visible(id, t) {
			return id
		}
	}
	return ""
}

// Update re-evaluates the automatic target at t. It reports changed only
// when the camera moved to a different body; in CameraManual, or when the
// target resolves to nothing, it does nothing.
func (c *CameraFocusController) Update(t float64) (string, bool) {
	if c.mode != model.CameraAuto {
		return c.tracked, false
	}
	id := c.Resolve(t)
	if id == "" || id == c.tracked {
		return c.tracked, false
	}
	c.tracked = id
	return id, true
}

// Toggle flips between CameraAuto and CameraManual. Entering CameraManual
// releases the target; returning to CameraAuto re-evaluates at t at once.
func (c *CameraFocusController) Toggle(t float64) model.CameraMode {
	if c.mode == model.CameraAuto {
		c.mode = model.CameraManual
		c.tracked = ""
		return c.mode
	}
	c.mode = model.CameraAuto
	c.Update(t)
	return c.mode
}
