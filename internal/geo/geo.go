package geo

import (
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// Ground tracks are stored in EPSG:3857 so that any viewer can draw them
// without reprojecting. Z carries altitude in metres and M carries elapsed
// mission seconds.

// MaxMercatorLat is the latitude limit of EPSG:3857.
const MaxMercatorLat = 85.05112878

// ErrTooFewPoints is returned when a ground track would have fewer than two
// vertices.
var ErrTooFewPoints = errors.New("ground track needs at least two points")

var to3857 = wgs84.EPSG().Transform(4326, 3857)

// Project converts a geodetic longitude/latitude to EPSG:3857 metres.
// Latitudes beyond the Mercator limit are clamped to it.
func Project(lon, lat float64) (x, y float64) {
	lat = math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, lat))
	x, y, _ = to3857(lon, lat, 0)
	return x, y
}

// Point3857 returns the projected position of w with its altitude as Z.
func Point3857(w model.Waypoint) (geom.Point, error) {
	x, y := Project(w.Lon, w.Lat)
	p, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Z:    w.Alt,
		Type: geom.DimXYZ,
	})
	if err != nil {
		return geom.Point{}, fmt.Errorf("point at t=%g: %w", w.Elapsed, err)
	}
	return p, nil
}

// Positioner is anything that can be sampled over time, such as a track.
type Positioner interface {
	PositionAt(t float64) (model.Waypoint, bool)
}

// Sample evaluates p every step seconds over [from, to], keeping the
// instants where it is defined. The end of the range is always sampled.
func Sample(p Positioner, from, to, step float64) ([]model.Waypoint, error) {
	if !(step > 0) || to < from {
		return nil, fmt.Errorf("sample: bad range [%g,%g] step %g", from, to, step)
	}
	var out []model.Waypoint
	n := int(math.Ceil((to-from)/step - 1e-9))
	for k := 0; k <= n; k++ {
		t := math.Min(from+float64(k)*step, to)
		if w, ok := p.PositionAt(t); ok {
			out = append(out, w)
		}
	}
	return out, nil
}

// LineString builds an XYZM ground track from ws. Longitudes should be
// continuous (unwrapped) so the line does not jump across the map at the
// antimeridian. A body that never leaves one spot has no track.
func LineString(ws []model.Waypoint) (geom.LineString, error) {
	if len(ws) < 2 {
		return geom.LineString{}, ErrTooFewPoints
	}
	flat := make([]float64, 0, len(ws)*4)
	distinct := false
	for i, w := range ws {
		x, y := Project(w.Lon, w.Lat)
		if i > 0 && (x != flat[0] || y != flat[1]) {
			distinct = true
		}
		flat = append(flat, x, y, w.Alt, w.Elapsed)
	}
	if !distinct {
		return geom.LineString{}, ErrTooFewPoints
	}
	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXYZM))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("ground track: %w", err)
	}
	return ls, nil
}

// GroundTrack samples p over [from, to] and returns its ground track.
func GroundTrack(p Positioner, from, to, step float64) (geom.LineString, error) {
	ws, err := Sample(p, from, to, step)
	if err != nil {
		return geom.LineString{}, err
	}
	return LineString(ws)
}

// Waypoints reads a ground track back into waypoints, inverting the
// projection. Lat/lon are recovered to within floating point error.
func Waypoints(ls geom.LineString) []model.Waypoint {
	seq := ls.Coordinates()
	out := make([]model.Waypoint, seq.Length())
	for i := range out {
		c := seq.Get(i)
		lon, lat := unproject(c.X, c.Y)
		out[i] = model.Waypoint{Elapsed: c.M, Lon: lon, Lat: lat, Alt: c.Z}
	}
	return out
}

var from3857 = wgs84.EPSG().Transform(3857, 4326)

func unproject(x, y float64) (lon, lat float64) {
	lon, lat, _ = from3857(x, y, 0)
	return lon, lat
}
