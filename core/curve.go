package core

import (
	"fmt"
	"math"
	"sort"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// Curve is a closed-form trajectory for one segment of a body's flight.
// At takes seconds since the segment started, clamped to [0, Duration], and
// returns a waypoint stamped with absolute mission time.
//
// Every constructor takes the terminal waypoint of the previous segment as
// its starting point so hand-off positions are never written down twice.
type Curve interface {
	Duration() float64
	At(dt float64) model.Waypoint
}

// CurveStart returns the first waypoint of c.
func CurveStart(c Curve) model.Waypoint { return c.At(0) }

// CurveEnd returns the last waypoint of c.
func CurveEnd(c Curve) model.Waypoint { return c.At(c.Duration()) }

func clampProgress(dt, duration float64) (float64, float64) {
	if dt < 0 {
		dt = 0
	}
	if dt > duration {
		dt = duration
	}
	if duration <= 0 {
		return dt, 1
	}
	return dt, dt / duration
}

// Hold keeps a body at a fixed position, e.g. the pause on the runway or a
// deployment highlight.
type Hold struct {
	from     model.Waypoint
	duration float64
}

// NewHold holds from for duration seconds.
func NewHold(from model.Waypoint, duration float64) *Hold {
	return &Hold{from: from, duration: duration}
}

func (h *Hold) Duration() float64 { return h.duration }

func (h *Hold) At(dt float64) model.Waypoint {
	dt, _ = clampProgress(dt, h.duration)
	return h.from.At(h.from.Elapsed + dt)
}

// Shape tunes a PowerLaw curve. Zero exponents mean linear progress.
type Shape struct {
	AltExp float64
	LonExp float64
	LatExp float64

	// Bulges add amp*sin(pi*p) degrees to the blend; zero at both ends.
	LonBulge float64
	LatBulge float64
}

// PowerLaw blends from a start to a target with independent power-law
// progress per axis:
//
//	alt(p) = a0 + (a1-a0)*p^AltExp,  p = dt/duration
//
// It covers climbs, ascents, insertion burns, stage falls and, with the zero
// Shape, straight taxi and cruise legs.
type PowerLaw struct {
	from, to model.Waypoint
	duration float64
	shape    Shape
}

// NewPowerLaw builds a power-law blend from from to to. The Elapsed field of
// to is ignored.
func NewPowerLaw(from, to model.Waypoint, duration float64, shape Shape) *PowerLaw {
	return &PowerLaw{from: from, to: to, duration: duration, shape: shape}
}

// NewLinear builds a straight-line blend with linear progress on all axes.
func NewLinear(from, to model.Waypoint, duration float64) *PowerLaw {
	return NewPowerLaw(from, to, duration, Shape{})
}

func (c *PowerLaw) Duration() float64 { return c.duration }

func (c *PowerLaw) At(dt float64) model.Waypoint {
	dt, p := clampProgress(dt, c.duration)
	bulge := math.Sin(math.Pi * p)
	if p == 1 {
		bulge = 0
	}
	return model.Waypoint{
		Elapsed: c.from.Elapsed + dt,
		Lon:     blend(c.from.Lon, c.to.Lon, p, c.shape.LonExp) + c.shape.LonBulge*bulge,
		Lat:     blend(c.from.Lat, c.to.Lat, p, c.shape.LatExp) + c.shape.LatBulge*bulge,
		Alt:     blend(c.from.Alt, c.to.Alt, p, c.shape.AltExp),
	}
}

func blend(a, b, p, exp float64) float64 {
	if exp == 0 {
		exp = 1
	}
	return a + (b-a)*math.Pow(p, exp)
}

// FreeFall drops a body from rest under a constant authored acceleration,
// alt = a0 - g*dt^2/2, keeping its horizontal position.
type FreeFall struct {
	from     model.Waypoint
	duration float64
	g        float64
}

// NewFreeFall builds a free fall lasting duration seconds with acceleration g
// in m/s^2.
func NewFreeFall(from model.Waypoint, duration, g float64) *FreeFall {
	return &FreeFall{from: from, duration: duration, g: g}
}

func (c *FreeFall) Duration() float64 { return c.duration }

func (c *FreeFall) At(dt float64) model.Waypoint {
	dt, _ = clampProgress(dt, c.duration)
	w := c.from.At(c.from.Elapsed + dt)
	w.Alt -= 0.5 * c.g * dt * dt
	return w
}

// SpiralShape configures a Spiral deorbit.
type SpiralShape struct {
	Revolutions float64 // full turns over the whole duration
	Radius      float64 // initial spiral radius, degrees
	Shrink      float64 // fraction of Radius lost by the end
	AltExp      float64 // altitude decay exponent
	Floor       float64 // final altitude, metres
}

// Spiral is a decaying horizontal spiral with power-law altitude decay:
//
//	angle  = p * 2*pi * Revolutions
//	radius = Radius * (1 - Shrink*p)
//	alt    = a0 + (Floor-a0) * p^AltExp
//
// The centre is solved from the starting point so At(0) is the start.
type Spiral struct {
	from       model.Waypoint
	duration   float64
	shape      SpiralShape
	cLon, cLat float64
}

// NewSpiral builds a spiral starting at from.
func NewSpiral(from model.Waypoint, duration float64, shape SpiralShape) *Spiral {
	return &Spiral{
		from:     from,
		duration: duration,
		shape:    shape,
		cLon:     from.Lon - shape.Radius,
		cLat:     from.Lat,
	}
}

func (c *Spiral) Duration() float64 { return c.duration }

func (c *Spiral) At(dt float64) model.Waypoint {
	dt, p := clampProgress(dt, c.duration)
	angle := p * 2 * math.Pi * c.shape.Revolutions
	r := c.shape.Radius * (1 - c.shape.Shrink*p)
	return model.Waypoint{
		Elapsed: c.from.Elapsed + dt,
		Lon:     c.cLon + r*math.Cos(angle),
		Lat:     c.cLat + r*math.Sin(angle),
		Alt:     blend(c.from.Alt, c.shape.Floor, p, c.shape.AltExp),
	}
}

// OrbitShape configures an OrbitSweep.
type OrbitShape struct {
	Period         float64 // seconds per revolution
	RadiusLon      float64 // degrees
	RadiusLat      float64 // degrees, before the inclination factor
	InclinationDeg float64
}

// OrbitSweep is the schematic constant-altitude orbit drawn after
// deployment:
//
//	lon = cLon + RadiusLon*cos(theta)
//	lat = cLat + RadiusLat*cos(incl)*sin(theta),  theta = 2*pi*dt/Period
//
// The centre is offset so that theta = 0 lands on the injection point.
type OrbitSweep struct {
	from       model.Waypoint
	duration   float64
	shape      OrbitShape
	cLon, cLat float64
	rLat       float64
}

// NewOrbitSweep builds an orbit sweep starting at the injection point from.
func NewOrbitSweep(from model.Waypoint, duration float64, shape OrbitShape) *OrbitSweep {
	return &OrbitSweep{
		from:     from,
		duration: duration,
		shape:    shape,
		cLon:     from.Lon - shape.RadiusLon,
		cLat:     from.Lat,
		rLat:     shape.RadiusLat * math.Cos(shape.InclinationDeg*math.Pi/180),
	}
}

func (c *OrbitSweep) Duration() float64 { return c.duration }

func (c *OrbitSweep) At(dt float64) model.Waypoint {
	dt, _ = clampProgress(dt, c.duration)
	theta := 0.0
	if c.shape.Period > 0 {
		theta = 2 * math.Pi * dt / c.shape.Period
	}
	return model.Waypoint{
		Elapsed: c.from.Elapsed + dt,
		Lon:     c.cLon + c.shape.RadiusLon*math.Cos(theta),
		Lat:     c.cLat + c.rLat*math.Sin(theta),
		Alt:     c.from.Alt,
	}
}

// Polyline replays an authored fixture. Vertex Elapsed values are offsets
// from the segment start; the start itself is the implicit first vertex.
type Polyline struct {
	vertices []model.Waypoint
}

// NewPolyline rebases the authored vertices onto from. Offsets must be
// positive and strictly increasing.
func NewPolyline(from model.Waypoint, vertices []model.Waypoint) (*Polyline, error) {
	if len(vertices) == 0 {
		return nil, fmt.Errorf("polyline: %w", ErrEmptyTrack)
	}
	out := make([]model.Waypoint, 0, len(vertices)+1)
	out = append(out, from)
	prev := 0.0
	for i, v := range vertices {
		if v.Elapsed <= prev {
			return nil, fmt.Errorf("polyline vertex %d at +%gs: %w", i, v.Elapsed, ErrNonIncreasing)
		}
		prev = v.Elapsed
		out = append(out, v.At(from.Elapsed+v.Elapsed))
	}
	return &Polyline{vertices: out}, nil
}

func (c *Polyline) Duration() float64 {
	return c.vertices[len(c.vertices)-1].Elapsed - c.vertices[0].Elapsed
}

func (c *Polyline) At(dt float64) model.Waypoint {
	dt, _ = clampProgress(dt, c.Duration())
	t := c.vertices[0].Elapsed + dt
	i := sort.Search(len(c.vertices), func(i int) bool { return c.vertices[i].Elapsed >= t })
	if i < len(c.vertices) && c.vertices[i].Elapsed == t {
		return c.vertices[i]
	}
	a, b := c.vertices[i-1], c.vertices[i]
	p := (t - a.Elapsed) / (b.Elapsed - a.Elapsed)
	return model.Waypoint{
		Elapsed: t,
		Lon:     a.Lon + (b.Lon-a.Lon)*p,
		Lat:     a.Lat + (b.Lat-a.Lat)*p,
		Alt:     a.Alt + (b.Alt-a.Alt)*p,
	}
}
