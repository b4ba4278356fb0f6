package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

var (
	// ErrInvalidTLE is returned for element sets that fail format or checksum
	// validation.
	ErrInvalidTLE = errors.New("invalid TLE")
	// ErrPropagationFailed is returned when SGP4 yields a non-finite state,
	// typically after orbital decay.
	ErrPropagationFailed = errors.New("SGP4 propagation failed")
)

// Propagator returns an inertial state for a wall-clock instant. Positions
// are ECI kilometres, velocities km/s.
type Propagator interface {
	Propagate(t time.Time) (pos, vel Vec3, err error)
}

// ElementSet is a named two-line element set.
type ElementSet struct {
	Name  string
	Line1 string
	Line2 string
}

// NoradID returns the catalogue number from line 1.
func (e ElementSet) NoradID() (uint32, error) {
	if len(e.Line1) < 7 {
		return 0, fmt.Errorf("%w: line 1 too short", ErrInvalidTLE)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(e.Line1[2:7]), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: catalogue number: %v", ErrInvalidTLE, err)
	}
	return uint32(id), nil
}

// Validate checks line numbers, lengths and modulo-10 checksums. go-satellite
// does not report parse errors, so sets are checked before they reach it.
func (e ElementSet) Validate() error {
	for i, line := range []string{e.Line1, e.Line2} {
		if len(line) != 69 {
			return fmt.Errorf("%w: %s line %d has %d chars", ErrInvalidTLE, e.Name, i+1, len(line))
		}
		if line[0] != byte('1'+i) {
			return fmt.Errorf("%w: %s line %d starts with %q", ErrInvalidTLE, e.Name, i+1, line[0])
		}
		if got, want := tleChecksum(line[:68]), line[68]; got != want {
			return fmt.Errorf("%w: %s line %d checksum %c, want %c", ErrInvalidTLE, e.Name, i+1, want, got)
		}
	}
	if e.Line1[2:7] != e.Line2[2:7] {
		return fmt.Errorf("%w: %s catalogue numbers differ", ErrInvalidTLE, e.Name)
	}
	return nil
}

func tleChecksum(s string) byte {
	sum := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			sum += int(r - '0')
		case r == '-':
			sum++
		}
	}
	return byte('0' + sum%10)
}

// SGP4Propagator propagates an element set with go-satellite.
type SGP4Propagator struct {
	set ElementSet
	sat satellite.Satellite
}

// NewSGP4Propagator validates set and prepares it for propagation with the
// WGS72 constants element sets are fitted against.
func NewSGP4Propagator(set ElementSet) (*SGP4Propagator, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &SGP4Propagator{
		set: set,
		sat: satellite.TLEToSat(set.Line1, set.Line2, satellite.GravityWGS72),
	}, nil
}

// ElementSet returns the propagated set.
func (p *SGP4Propagator) ElementSet() ElementSet { return p.set }

// Propagate implements Propagator.
func (p *SGP4Propagator) Propagate(t time.Time) (Vec3, Vec3, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	pos, vel := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	r := Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}
	v := Vec3{X: vel.X, Y: vel.Y, Z: vel.Z}
	if !finite(r.X, r.Y, r.Z, v.X, v.Y, v.Z) || r.Norm() == 0 {
		return Vec3{}, Vec3{}, fmt.Errorf("%w: %s at %s", ErrPropagationFailed, p.set.Name, t.Format(time.RFC3339))
	}
	return r, v, nil
}

// GMST returns Greenwich mean sidereal time at t in radians.
func GMST(t time.Time) float64 {
	g := math.Mod(sidereal.Mean(julian.TimeToJD(t.UTC())).Angle().Rad(), 2*math.Pi)
	if g < 0 {
		g += 2 * math.Pi
	}
	return g
}

// ECIToGeodetic rotates an ECI position in kilometres into the Earth-fixed
// frame at t and returns the WGS84 geodetic position. Elapsed is left zero.
func ECIToGeodetic(pos Vec3, t time.Time) model.Waypoint {
	theta := GMST(t)
	s, c := math.Sincos(theta)
	ecef := Vec3{
		X: c*pos.X + s*pos.Y,
		Y: -s*pos.X + c*pos.Y,
		Z: pos.Z,
	}.Scale(1000)
	lon, lat, alt := ECEFToGeodetic(ecef)
	return model.Waypoint{Lon: lon, Lat: lat, Alt: alt}
}

// PropagateTrack samples p from start to stop elapsed seconds every step
// seconds, anchored at epoch, into a linear track with continuous
// longitudes. Steps that fail to propagate are skipped; the track fails only
// when fewer than two samples remain.
func PropagateTrack(p Propagator, epoch time.Time, start, stop, step float64) (*Track, error) {
	if !(step > 0) || stop <= start {
		return nil, fmt.Errorf("propagate track: bad range [%g,%g] step %g", start, stop, step)
	}
	var samples []model.Waypoint
	var lastErr error
	for e := start; e <= stop+1e-9; e += step {
		at := epoch.Add(time.Duration(e * float64(time.Second)))
		pos, _, err := p.Propagate(at)
		if err != nil {
			lastErr = err
			continue
		}
		samples = append(samples, ECIToGeodetic(pos, at).At(e))
	}
	if len(samples) < 2 {
		if lastErr == nil {
			lastErr = ErrEmptyTrack
		}
		return nil, fmt.Errorf("propagate track: %w", lastErr)
	}
	return NewTrack(UnwrapLongitudes(samples), Linear())
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
