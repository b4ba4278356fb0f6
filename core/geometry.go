package core

import (
	"math"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// WGS84 ellipsoid parameters in metres.
const (
	wgs84A  = 6378137.0
	wgs84F  = 1 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)

	// EarthRadiusM is the mean Earth radius used for local tangent-plane
	// approximations (orientation from finite differences).
	EarthRadiusM = 6371000.0

	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// Vec3 is a Cartesian vector. ECEF positions are in metres; propagated ECI
// states use kilometres as go-satellite does.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// GeodeticToECEF converts a waypoint's lon/lat/alt on WGS84 to ECEF metres.
func GeodeticToECEF(w model.Waypoint) Vec3 {
	lat := w.Lat * deg2rad
	lon := w.Lon * deg2rad
	sinLat := math.Sin(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	return Vec3{
		X: (n + w.Alt) * math.Cos(lat) * math.Cos(lon),
		Y: (n + w.Alt) * math.Cos(lat) * math.Sin(lon),
		Z: (n*(1-wgs84E2) + w.Alt) * sinLat,
	}
}

// ECEFToGeodetic converts ECEF metres to lon/lat degrees and altitude in
// metres using Bowring's method, which is accurate to well under a metre
// from the surface to geostationary altitude.
func ECEFToGeodetic(v Vec3) (lon, lat, alt float64) {
	b := wgs84A * (1 - wgs84F)
	ep2 := (wgs84A*wgs84A - b*b) / (b * b)
	p := math.Hypot(v.X, v.Y)
	if p == 0 {
		lat = math.Copysign(90, v.Z)
		return 0, lat, math.Abs(v.Z) - b
	}
	theta := math.Atan2(v.Z*wgs84A, p*b)
	st, ct := math.Sincos(theta)
	phi := math.Atan2(v.Z+ep2*b*st*st*st, p-wgs84E2*wgs84A*ct*ct*ct)
	sinPhi := math.Sin(phi)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinPhi*sinPhi)
	alt = p/math.Cos(phi) - n
	return math.Atan2(v.Y, v.X) * rad2deg, phi * rad2deg, alt
}

// Distance returns the ECEF straight-line distance between two waypoints in
// metres. Time stamps are ignored.
func Distance(a, b model.Waypoint) float64 {
	return GeodeticToECEF(a).DistanceTo(GeodeticToECEF(b))
}

// enuDelta approximates the east/north/up displacement from a to b on a
// local tangent plane at a.
func enuDelta(a, b model.Waypoint) (east, north, up float64) {
	r := EarthRadiusM + a.Alt
	east = (b.Lon - a.Lon) * deg2rad * r * math.Cos(a.Lat*deg2rad)
	north = (b.Lat - a.Lat) * deg2rad * r
	up = b.Alt - a.Alt
	return east, north, up
}

// UnwrapLongitudes removes ±360° jumps between consecutive waypoints so a
// body crossing the antimeridian keeps a continuous longitude. The input is
// not modified.
func UnwrapLongitudes(ws []model.Waypoint) []model.Waypoint {
	out := append([]model.Waypoint(nil), ws...)
	offset := 0.0
	for i := 1; i < len(out); i++ {
		raw := ws[i].Lon
		d := raw + offset - out[i-1].Lon
		for d > 180 {
			offset -= 360
			d -= 360
		}
		for d < -180 {
			offset += 360
			d += 360
		}
		out[i].Lon = raw + offset
	}
	return out
}
