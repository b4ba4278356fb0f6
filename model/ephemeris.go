package model

// EphemerisRow is one row of a primary ephemeris report: a full position.
// Alt is in metres (reports carry kilometres; parsers convert).
type EphemerisRow struct {
	Elapsed float64
	Alt     float64
	Lat     float64
	Lon     float64
}

// Waypoint returns the row as a waypoint.
func (r EphemerisRow) Waypoint() Waypoint {
	return Waypoint{Elapsed: r.Elapsed, Lon: r.Lon, Lat: r.Lat, Alt: r.Alt}
}

// AltitudeRow is one row of a dependent report that only carries altitude.
type AltitudeRow struct {
	Elapsed float64
	Alt     float64
}
