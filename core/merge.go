package core

import (
	"math"
	"sort"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// DefaultMergeTolerance is the largest |dt| in seconds at which a dependent
// row is paired with a primary row.
const DefaultMergeTolerance = 10.0

// MergeStats counts the outcome of a Merge.
type MergeStats struct {
	Matched int
	Dropped int
}

// Merge pairs every dependent row with the primary row nearest in time and
// keeps the pair when |dt| < tolerance. A kept pair becomes a waypoint at the
// dependent row's time with the primary's lon/lat and the dependent's
// altitude. Equidistant primaries resolve to the earlier one. Both inputs
// must be sorted by Elapsed; the output follows the dependent order.
func Merge(primary []model.EphemerisRow, dependent []model.AltitudeRow, tolerance float64) ([]model.Waypoint, MergeStats) {
	var stats MergeStats
	if len(primary) == 0 {
		stats.Dropped = len(dependent)
		return nil, stats
	}
	out := make([]model.Waypoint, 0, len(dependent))
	for _, d := range dependent {
		p := nearestPrimary(primary, d.Elapsed)
		if !(math.Abs(p.Elapsed-d.Elapsed) < tolerance) {
			stats.Dropped++
			continue
		}
		stats.Matched++
		out = append(out, model.Waypoint{Elapsed: d.Elapsed, Lon: p.Lon, Lat: p.Lat, Alt: d.Alt})
	}
	return out, stats
}

func nearestPrimary(primary []model.EphemerisRow, t float64) model.EphemerisRow {
	j := sort.Search(len(primary), func(i int) bool { return primary[i].Elapsed >= t })
	switch {
	case j == 0:
		return primary[0]
	case j == len(primary):
		return primary[j-1]
	}
	before, after := primary[j-1], primary[j]
	if after.Elapsed-t < t-before.Elapsed {
		return after
	}
	return before
}
