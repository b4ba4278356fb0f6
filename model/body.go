package model

// BodyKind classifies a moving body for rendering and labelling.
type BodyKind int

const (
	BodyKindUnknown   BodyKind = iota
	BodyKindAircraft           // carrier aircraft
	BodyKindLauncher           // combined vehicle or a stage
	BodyKindSatellite          // deployed or reference satellite
)

// String returns the lower-case kind name used in logs and on the wire.
func (k BodyKind) String() string {
	switch k {
	case BodyKindAircraft:
		return "aircraft"
	case BodyKindLauncher:
		return "launcher"
	case BodyKindSatellite:
		return "satellite"
	default:
		return "unknown"
	}
}

// ParseBodyKind is the inverse of BodyKind.String; unknown names map to
// BodyKindUnknown.
func ParseBodyKind(name string) BodyKind {
	switch name {
	case "aircraft":
		return BodyKindAircraft
	case "launcher":
		return BodyKindLauncher
	case "satellite":
		return BodyKindSatellite
	default:
		return BodyKindUnknown
	}
}

// BodySource indicates where a body's trajectory comes from.
type BodySource int

const (
	BodySourceAuthored  BodySource = iota // parametric segment chain
	BodySourceEphemeris                   // external ephemeris report
	BodySourceSGP4                        // propagated element set
)

// String returns the source name.
func (s BodySource) String() string {
	switch s {
	case BodySourceEphemeris:
		return "ephemeris"
	case BodySourceSGP4:
		return "sgp4"
	default:
		return "authored"
	}
}

// OrientationMode selects how a body's attitude is derived.
type OrientationMode int

const (
	OrientationNone     OrientationMode = iota
	OrientationVelocity                 // nose along the direction of travel
)

// OrientationPolicy describes how to orient a body's model. The offsets are
// applied after the velocity-derived attitude, mirroring the fixed model
// corrections renderers usually need.
type OrientationPolicy struct {
	Mode             OrientationMode
	HeadingOffsetDeg float64
	PitchOffsetDeg   float64
}

// BodyDefinition is the static description of a body shown in the scene.
// The trajectory itself lives in core.Track; this struct carries identity,
// visibility and orientation only.
type BodyDefinition struct {
	ID     string
	Name   string
	Kind   BodyKind
	Source BodySource

	Active      Interval
	Orientation OrientationPolicy

	NoradID uint32 // optional; set for BodySourceSGP4
}

// Trajectory is the read side of a body's track. Implementations must be
// pure functions of elapsed time.
type Trajectory interface {
	PositionAt(elapsed float64) (Waypoint, bool)
	OrientationAt(elapsed float64, policy OrientationPolicy) (Orientation, bool)
	Coverage() Interval
}
