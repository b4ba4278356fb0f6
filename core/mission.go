package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// Phase names of the air-launch mission.
const (
	PhaseCarrierFlight    = "carrier-flight"
	PhaseBoost            = "boost"
	PhaseUpperStageAscent = "upper-stage-ascent"
	PhaseDeployment       = "deployment"
	PhaseOrbit            = "orbit"
	PhaseDeorbit          = "deorbit"
)

// Body ids of the air-launch mission.
const (
	BodyCarrier         = "carrier"
	BodyCombinedAscent  = "combined-ascent"
	BodyStage1Fall      = "stage1-fall"
	BodyUpperStage      = "upper-stage"
	BodySatellite       = "satellite"
	BodyGMATSatellite   = "gmat-satellite"
	BodyGMATUpperStage  = "gmat-upper-stage"
	ReferenceBodyPrefix = "ref-"
)

// Body is a body definition with its trajectory.
type Body struct {
	model.BodyDefinition
	Track *Track
}

// StateAt returns the body's state at t, or false when the body is not
// visible: outside its active interval or its track coverage.
func (b *Body) StateAt(t float64) (model.BodyState, bool) {
	return BodyStateAt(b.BodyDefinition, b.Track, t)
}

// BodyStateAt evaluates any trajectory under a definition's visibility and
// orientation rules.
func BodyStateAt(def model.BodyDefinition, traj model.Trajectory, t float64) (model.BodyState, bool) {
	if traj == nil || !def.Active.Contains(t) {
		return model.BodyState{}, false
	}
	pos, ok := traj.PositionAt(t)
	if !ok {
		return model.BodyState{}, false
	}
	st := model.BodyState{ID: def.ID, Name: def.Name, Kind: def.Kind, Position: pos}
	if o, ok := traj.OrientationAt(t, def.Orientation); ok {
		st.Orientation = &o
	}
	return st, true
}

// PhaseDurations are the configurable phase lengths in seconds.
type PhaseDurations struct {
	CarrierFlight    float64
	Boost            float64
	UpperStageAscent float64
	Deployment       float64
	Orbit            float64
	Deorbit          float64
}

// MissionConfig parameterises the air-launch mission.
type MissionConfig struct {
	Epoch     time.Time
	Durations PhaseDurations

	RunwayStart model.Waypoint
	DropPoint   model.Waypoint // carrier release; Elapsed ignored
	DeployPoint model.Waypoint // satellite injection; Elapsed ignored

	SeparationAlt       float64 // metres
	OrbitInclinationDeg float64
	ContinuityEpsilon   float64 // metres

	// Reference satellites are propagated from Epoch for ReferenceWindow
	// seconds every ReferenceStep seconds.
	ReferenceSatellites []ElementSet
	ReferenceWindow     float64
	ReferenceStep       float64
}

// DefaultMissionConfig returns the Dakar air-launch profile.
func DefaultMissionConfig() MissionConfig {
	return MissionConfig{
		Epoch: time.Date(2025, time.October, 3, 9, 0, 0, 0, time.UTC),
		Durations: PhaseDurations{
			CarrierFlight:    3164,
			Boost:            180,
			UpperStageAscent: 540,
			Deployment:       60,
			Orbit:            5400,
			Deorbit:          172800,
		},
		RunwayStart:         model.Waypoint{Lon: -17.072957, Lat: 14.686448},
		DropPoint:           model.Waypoint{Lon: -16.493, Lat: 3.336, Alt: 12000},
		DeployPoint:         model.Waypoint{Lon: 161.236329, Lat: 0.150964, Alt: 679860},
		SeparationAlt:       120000,
		OrbitInclinationDeg: 14.7,
		ContinuityEpsilon:   DefaultContinuityEpsilon,
		ReferenceSatellites: ReferenceCatalog(),
		ReferenceWindow:     7200,
		ReferenceStep:       60,
	}
}

// Phases builds the mission phase table from the configured durations.
func (cfg MissionConfig) Phases() (*PhaseTable, error) {
	d := cfg.Durations
	return NewPhaseTable(
		Phase{Name: PhaseCarrierFlight, Duration: d.CarrierFlight},
		Phase{Name: PhaseBoost, Duration: d.Boost},
		Phase{Name: PhaseUpperStageAscent, Duration: d.UpperStageAscent},
		Phase{Name: PhaseDeployment, Duration: d.Deployment},
		Phase{Name: PhaseOrbit, Duration: d.Orbit},
		Phase{Name: PhaseDeorbit, Duration: d.Deorbit},
	)
}

// Mission is the authored scene: the phase table, every authored body and
// the chains they were built from.
type Mission struct {
	Epoch    time.Time
	Phases   *PhaseTable
	Bodies   []*Body
	Chains   []*Chain
	Handoffs []Handoff
}

// Handoff is an instant at which one body spawns another at its own
// position, such as a release or a stage separation.
type Handoff struct {
	From, To string
	At       float64
}

// Body returns the body with the given id, or nil.
func (m *Mission) Body(id string) *Body {
	for _, b := range m.Bodies {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// Validate checks every chain's continuity and that both bodies of every
// handoff agree on the position at the handoff instant. Each failure
// contributes one *DiscontinuityError to the joined result.
func (m *Mission) Validate(eps float64) error {
	var errs []error
	for _, ch := range m.Chains {
		if err := ch.ValidateContinuity(eps); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range m.Handoffs {
		if err := m.validateHandoff(h, eps); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Mission) validateHandoff(h Handoff, eps float64) error {
	from, to := m.Body(h.From), m.Body(h.To)
	if from == nil || to == nil {
		return fmt.Errorf("handoff %s->%s: body missing", h.From, h.To)
	}
	a, okA := from.Track.PositionAt(h.At)
	b, okB := to.Track.PositionAt(h.At)
	if !okA || !okB {
		return fmt.Errorf("handoff %s->%s at %gs: outside track coverage", h.From, h.To, h.At)
	}
	if gap := Distance(a, b); gap > eps {
		return &DiscontinuityError{
			Body:       h.From + "->" + h.To,
			Epsilon:    eps,
			Violations: []Violation{{Before: h.From, After: h.To, Gap: gap}},
		}
	}
	return nil
}

// carrier anchor points between the runway and the drop point.
var (
	carrierHoldShort  = model.Waypoint{Lon: -17.072915, Lat: 14.680000}
	carrierRotate     = model.Waypoint{Lon: -17.072475, Lat: 14.637700, Alt: 530}
	carrierTopOfClimb = model.Waypoint{Lon: -17.054240, Lat: 14.284900, Alt: 12000}
)

const (
	carrierPause   = 60.0
	carrierTaxi    = 65.0
	carrierTakeoff = 50.0
	carrierClimb   = 300.0
)

// carrierReturn is the evasive break after release and the flight back to
// the runway. Elapsed values are offsets from the drop.
var carrierReturn = []model.Waypoint{
	{Elapsed: 6, Lon: -16.491, Lat: 3.282, Alt: 11900},
	{Elapsed: 18, Lon: -16.4888, Lat: 3.174, Alt: 11700},
	{Elapsed: 36, Lon: -16.5075, Lat: 3.035, Alt: 11400},
	{Elapsed: 58, Lon: -16.5505, Lat: 3.000, Alt: 11400},
	{Elapsed: 82, Lon: -16.575, Lat: 3.080, Alt: 11400},
	{Elapsed: 256, Lon: -16.584, Lat: 4.500, Alt: 11400},
	{Elapsed: 736, Lon: -16.605, Lat: 9.000, Alt: 11400},
	{Elapsed: 1036, Lon: -16.635, Lat: 12.000, Alt: 11400},
	{Elapsed: 1236, Lon: -16.690, Lat: 14.000, Alt: 11200},
	{Elapsed: 1261, Lon: -16.695, Lat: 14.150, Alt: 11000},
	{Elapsed: 1411, Lon: -16.850, Lat: 14.590, Alt: 7000},
	{Elapsed: 1561, Lon: -17.010, Lat: 14.670, Alt: 3000},
	{Elapsed: 1636, Lon: -17.072747, Lat: 14.686448, Alt: 0},
}

// BuildAirLaunchMission authors every body of the mission from cfg, checks
// that all hand-offs are continuous and propagates the reference
// satellites.
func BuildAirLaunchMission(cfg MissionConfig) (*Mission, error) {
	pt, err := cfg.Phases()
	if err != nil {
		return nil, err
	}
	m := &Mission{Epoch: cfg.Epoch, Phases: pt}

	launch, _ := pt.StartOf(PhaseBoost)
	sepT, _ := pt.StartOf(PhaseUpperStageAscent)
	deployT, _ := pt.StartOf(PhaseDeployment)
	orbitEnd, _ := pt.EndOf(PhaseOrbit)

	carrier, err := carrierChain(cfg, launch)
	if err != nil {
		return nil, err
	}
	drop := cfg.DropPoint.At(launch)
	combined := combinedChain(cfg, drop)
	sep := combined.End()
	if math.Abs(sep.Elapsed-sepT) > 1e-6 {
		return nil, fmt.Errorf("combined ascent ends at %gs, separation is at %gs", sep.Elapsed, sepT)
	}
	sep = sep.At(sepT)
	stage1 := stage1Chain(sep)
	upper := upperStageChain(cfg, sep)
	sat := satelliteChain(cfg, cfg.DeployPoint.At(deployT), orbitEnd-deployT)

	eps := cfg.ContinuityEpsilon
	if eps <= 0 {
		eps = DefaultContinuityEpsilon
	}
	velocity := model.OrientationPolicy{Mode: model.OrientationVelocity}
	for _, a := range []struct {
		chain *Chain
		name  string
		kind  model.BodyKind
	}{
		{carrier, "Carrier aircraft", model.BodyKindAircraft},
		{combined, "Launcher (combined)", model.BodyKindLauncher},
		{stage1, "Stage 1", model.BodyKindLauncher},
		{upper, "Upper stage", model.BodyKindLauncher},
		{sat, "Satellite", model.BodyKindSatellite},
	} {
		tr, err := a.chain.Build()
		if err != nil {
			return nil, err
		}
		m.Chains = append(m.Chains, a.chain)
		m.Bodies = append(m.Bodies, &Body{
			BodyDefinition: model.BodyDefinition{
				ID:          a.chain.Body(),
				Name:        a.name,
				Kind:        a.kind,
				Source:      model.BodySourceAuthored,
				Active:      tr.Coverage(),
				Orientation: velocity,
			},
			Track: tr,
		})
	}
	m.Handoffs = []Handoff{
		{From: BodyCarrier, To: BodyCombinedAscent, At: launch},
		{From: BodyCombinedAscent, To: BodyStage1Fall, At: sepT},
		{From: BodyCombinedAscent, To: BodyUpperStage, At: sepT},
		{From: BodyUpperStage, To: BodySatellite, At: deployT},
	}
	if err := m.Validate(eps); err != nil {
		return nil, err
	}

	refs, err := ReferenceBodies(cfg.ReferenceSatellites, cfg.Epoch, cfg.ReferenceWindow, cfg.ReferenceStep)
	if err != nil {
		return nil, err
	}
	m.Bodies = append(m.Bodies, refs...)
	return m, nil
}

func carrierChain(cfg MissionConfig, launch float64) (*Chain, error) {
	cruise := launch - (carrierPause + carrierTaxi + carrierTakeoff + carrierClimb)
	if !(cruise > 0) {
		return nil, fmt.Errorf("carrier flight of %gs leaves no time to cruise: %w", launch, ErrInvalidDuration)
	}
	ch := NewChain(BodyCarrier, cfg.RunwayStart.At(0))
	ch.Append(Segment{Name: "pause", Curve: NewHold(ch.End(), carrierPause), Step: 10, Interp: Linear()})
	ch.Append(Segment{Name: "taxi", Curve: NewLinear(ch.End(), carrierHoldShort, carrierTaxi), Step: 5, Interp: Smooth(3)})
	ch.Append(Segment{Name: "takeoff", Curve: NewPowerLaw(ch.End(), carrierRotate, carrierTakeoff, Shape{AltExp: 2}), Step: 5, Interp: Smooth(3)})
	ch.Append(Segment{Name: "climb", Curve: NewPowerLaw(ch.End(), carrierTopOfClimb, carrierClimb, Shape{AltExp: 0.8}), Step: 5, Interp: Smooth(3)})
	ch.Append(Segment{Name: "cruise", Curve: NewLinear(ch.End(), cfg.DropPoint, cruise), Step: 30, Interp: Smooth(3)})
	ret, err := NewPolyline(ch.End(), carrierReturn)
	if err != nil {
		return nil, fmt.Errorf("carrier return: %w", err)
	}
	ch.Append(Segment{Name: "return", Curve: ret, Step: 10, Interp: Linear()})
	return ch, nil
}

const (
	dropDuration = 3.0
	dropAccel    = 10.0
	coastTime    = 10.0
	driftTime    = 60.0
	upperDeorbit = 600.0
)

// combinedChain is the launcher from release to stage separation: a short
// unpowered drop, a near-vertical climb and a gravity turn east.
func combinedChain(cfg MissionConfig, drop model.Waypoint) *Chain {
	powered := cfg.Durations.Boost - dropDuration
	vertical := powered * 37 / 177
	turn := powered - vertical

	verticalTop := model.Waypoint{Lon: drop.Lon + 0.8, Lat: drop.Lat + 0.15, Alt: 35000}
	sep := model.Waypoint{Lon: drop.Lon + 18, Lat: drop.Lat + 0.8, Alt: cfg.SeparationAlt}

	ch := NewChain(BodyCombinedAscent, drop)
	ch.Append(Segment{Name: "drop", Curve: NewFreeFall(ch.End(), dropDuration, dropAccel), Step: 0.5, Interp: Smooth(3)})
	ch.Append(Segment{Name: "vertical", Curve: NewPowerLaw(ch.End(), verticalTop, vertical, Shape{AltExp: 2}), Step: 1, Interp: Smooth(3)})
	ch.Append(Segment{Name: "gravity-turn", Curve: NewPowerLaw(ch.End(), sep, turn, Shape{AltExp: 2, LatExp: 2}), Step: 5, Interp: Smooth(3)})
	return ch
}

// stage1Chain is the spent first stage falling back from separation.
func stage1Chain(sep model.Waypoint) *Chain {
	impact := model.Waypoint{Lon: sep.Lon + 6, Lat: sep.Lat + 0.4, Alt: 0}
	ch := NewChain(BodyStage1Fall, sep)
	ch.Append(Segment{Name: "fall", Curve: NewPowerLaw(ch.End(), impact, 180, Shape{AltExp: 0.55, LatExp: 2}), Step: 5, Interp: Smooth(3)})
	return ch
}

// upperStageChain flies the upper stage from separation to the deployment
// point, drifts while the satellite separates and then deorbits.
func upperStageChain(cfg MissionConfig, sep model.Waypoint) *Chain {
	burn := cfg.Durations.UpperStageAscent - coastTime
	ascent := burn * 270 / 530
	circ := burn - ascent
	deploy := cfg.DeployPoint

	ch := NewChain(BodyUpperStage, sep)
	coastEnd := model.Waypoint{Lon: sep.Lon + 3, Lat: sep.Lat + 0.15, Alt: sep.Alt + 10000}
	ch.Append(Segment{Name: "coast", Curve: NewLinear(ch.End(), coastEnd, coastTime), Step: 2, Interp: Smooth(3)})

	from := ch.End()
	ascentEnd := model.Waypoint{Lon: from.Lon + 0.35*(deploy.Lon-from.Lon), Lat: from.Lat, Alt: 450000}
	ch.Append(Segment{Name: "ascent", Curve: NewPowerLaw(from, ascentEnd, ascent, Shape{AltExp: 0.65, LatBulge: 2.5}), Step: 5, Interp: Smooth(3)})
	ch.Append(Segment{Name: "circularisation", Curve: NewLinear(ch.End(), deploy, circ), Step: 5, Interp: Smooth(3)})

	drift := model.Waypoint{Lon: deploy.Lon + 5, Lat: deploy.Lat, Alt: deploy.Alt - 5000}
	ch.Append(Segment{Name: "drift", Curve: NewPowerLaw(ch.End(), drift, driftTime, Shape{LatBulge: 0.3}), Step: 5, Interp: Smooth(3)})

	from = ch.End()
	reentry := model.Waypoint{Lon: from.Lon + 25, Lat: from.Lat - 35, Alt: 0}
	ch.Append(Segment{Name: "deorbit", Curve: NewPowerLaw(from, reentry, upperDeorbit, Shape{AltExp: 0.4}), Step: 10, Interp: Smooth(3)})
	return ch
}

// satelliteChain is the synthetic satellite: a schematic orbit from
// injection until the deorbit phase, then a decaying spiral.
func satelliteChain(cfg MissionConfig, injection model.Waypoint, orbitFor float64) *Chain {
	ch := NewChain(BodySatellite, injection)
	ch.Append(Segment{
		Name: "orbit",
		Curve: NewOrbitSweep(ch.End(), orbitFor, OrbitShape{
			Period: 5400, RadiusLon: 30, RadiusLat: 20, InclinationDeg: cfg.OrbitInclinationDeg,
		}),
		Step:   30,
		Interp: Smooth(5),
	})
	ch.Append(Segment{
		Name: "deorbit",
		Curve: NewSpiral(ch.End(), cfg.Durations.Deorbit, SpiralShape{
			Revolutions: 20, Radius: 30, Shrink: 0.5, AltExp: 0.8,
		}),
		Step:   3600,
		Interp: Linear(),
	})
	return ch
}

// ReferenceBodies propagates each element set over [0, window] mission
// seconds from epoch into a reference satellite body.
func ReferenceBodies(sets []ElementSet, epoch time.Time, window, step float64) ([]*Body, error) {
	var out []*Body
	for _, set := range sets {
		p, err := NewSGP4Propagator(set)
		if err != nil {
			return nil, err
		}
		id, err := set.NoradID()
		if err != nil {
			return nil, err
		}
		tr, err := PropagateTrack(p, epoch, 0, window, step)
		if err != nil {
			return nil, fmt.Errorf("reference %s: %w", set.Name, err)
		}
		out = append(out, &Body{
			BodyDefinition: model.BodyDefinition{
				ID:          fmt.Sprintf("%s%05d", ReferenceBodyPrefix, id),
				Name:        set.Name,
				Kind:        model.BodyKindSatellite,
				Source:      model.BodySourceSGP4,
				Active:      tr.Coverage(),
				Orientation: model.OrientationPolicy{Mode: model.OrientationVelocity},
				NoradID:     id,
			},
			Track: tr,
		})
	}
	return out, nil
}

// EphemerisBodies turns loaded reports into the ephemeris satellite (from
// the primary report) and the ephemeris upper stage (dependent altitudes
// merged onto primary ground positions). Report time zero is re-anchored to
// anchor, the mission instant of deployment. A side whose rows are missing
// or too few for a track is left out.
func EphemerisBodies(batch EphemerisBatch, anchor, tolerance float64) ([]*Body, MergeStats, error) {
	var out []*Body
	var stats MergeStats
	if batch.PrimaryErr != nil || len(batch.Primary) == 0 {
		return nil, stats, nil
	}

	primary := make([]model.Waypoint, len(batch.Primary))
	for i, r := range batch.Primary {
		primary[i] = r.Waypoint()
	}
	sat, err := ephemerisBody(BodyGMATSatellite, "Satellite (ephemeris)", model.BodyKindSatellite, primary, anchor)
	if err != nil {
		return nil, stats, err
	}
	out = append(out, sat)

	if batch.DependentErr != nil || len(batch.Dependent) == 0 {
		return out, stats, nil
	}
	merged, stats := Merge(batch.Primary, batch.Dependent, tolerance)
	if len(merged) < 2 {
		return out, stats, nil
	}
	upper, err := ephemerisBody(BodyGMATUpperStage, "Upper stage (ephemeris)", model.BodyKindLauncher, merged, anchor)
	if err != nil {
		return out, stats, err
	}
	return append(out, upper), stats, nil
}

func ephemerisBody(id, name string, kind model.BodyKind, ws []model.Waypoint, anchor float64) (*Body, error) {
	ws = dedupe(ws)
	mode := Smooth(3)
	if len(ws) < 4 {
		mode = Linear()
	}
	tr, err := NewTrack(UnwrapLongitudes(ws), mode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	tr = tr.Shift(anchor)
	return &Body{
		BodyDefinition: model.BodyDefinition{
			ID:          id,
			Name:        name,
			Kind:        kind,
			Source:      model.BodySourceEphemeris,
			Active:      tr.Coverage(),
			Orientation: model.OrientationPolicy{Mode: model.OrientationVelocity},
		},
		Track: tr,
	}, nil
}

// dedupe drops samples whose time repeats the previous one; the first wins.
func dedupe(ws []model.Waypoint) []model.Waypoint {
	out := make([]model.Waypoint, 0, len(ws))
	for _, w := range ws {
		if n := len(out); n > 0 && w.Elapsed <= out[n-1].Elapsed {
			continue
		}
		out = append(out, w)
	}
	return out
}

// EphemerisBatch is one completed load of the primary and dependent
// reports. Either side may have failed independently.
type EphemerisBatch struct {
	Primary      []model.EphemerisRow
	Dependent    []model.AltitudeRow
	PrimaryErr   error
	DependentErr error
}
