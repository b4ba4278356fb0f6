package model

import "math"

// Waypoint is a single timestamped geodetic position sample.
// Elapsed is seconds from the mission epoch, Lon/Lat are degrees and Alt is
// metres above the WGS84 ellipsoid.
//
// Longitudes inside a track are kept continuous (they may leave [-180, 180)
// when a body crosses the antimeridian) so interpolation never sweeps the
// wrong way round the globe. Use Normalized before handing a position to a
// renderer.
type Waypoint struct {
	Elapsed float64
	Lon     float64
	Lat     float64
	Alt     float64
}

// At returns a copy of w re-stamped at elapsed.
func (w Waypoint) At(elapsed float64) Waypoint {
	w.Elapsed = elapsed
	return w
}

// Normalized wraps the longitude into [-180, 180).
func (w Waypoint) Normalized() Waypoint {
	w.Lon = NormalizeLon(w.Lon)
	return w
}

// NormalizeLon wraps a longitude in degrees into [-180, 180).
func NormalizeLon(lon float64) float64 {
	l := math.Mod(lon+180, 360)
	if l < 0 {
		l += 360
	}
	return l - 180
}

// Orientation is a body attitude expressed as heading (degrees clockwise from
// north) and pitch (degrees above the local horizontal).
type Orientation struct {
	HeadingDeg float64
	PitchDeg   float64
}

// Interval is a closed [Start, Stop] range of elapsed seconds.
type Interval struct {
	Start float64
	Stop  float64
}

// Contains reports whether t lies inside the interval.
func (i Interval) Contains(t float64) bool {
	return t >= i.Start && t <= i.Stop
}

// Duration returns Stop - Start.
func (i Interval) Duration() float64 {
	return i.Stop - i.Start
}
