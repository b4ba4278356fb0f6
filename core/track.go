package core

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// MaxSmoothDegree bounds Lagrange smoothing. Higher degrees oscillate badly
// on sparse samples.
const MaxSmoothDegree = 7

// InterpMode selects how a track span is evaluated between samples.
type InterpMode int

const (
	ModeLinear InterpMode = iota
	ModeSmooth
)

// Interpolation is a span's evaluation mode plus, for ModeSmooth, the
// Lagrange degree.
type Interpolation struct {
	Mode   InterpMode
	Degree int
}

// Linear returns piecewise-linear interpolation.
func Linear() Interpolation { return Interpolation{Mode: ModeLinear, Degree: 1} }

// Smooth returns local Lagrange interpolation of the given degree.
func Smooth(degree int) Interpolation { return Interpolation{Mode: ModeSmooth, Degree: degree} }

// Validate reports ErrInvalidDegree for smoothing degrees outside
// 1..MaxSmoothDegree.
func (in Interpolation) Validate() error {
	if in.Mode == ModeSmooth && (in.Degree < 1 || in.Degree > MaxSmoothDegree) {
		return fmt.Errorf("%w: %d", ErrInvalidDegree, in.Degree)
	}
	return nil
}

func (in Interpolation) String() string {
	if in.Mode == ModeSmooth {
		return fmt.Sprintf("smooth(%d)", in.Degree)
	}
	return "linear"
}

// span is a run of samples [lo, hi] sharing one interpolation mode.
// Adjacent spans share their boundary sample; smoothing never reaches past
// either end of its span.
type span struct {
	lo, hi int
	mode   Interpolation

	// fitted per axis for ModeLinear spans
	lon, lat, alt *interp.PiecewiseLinear
}

// Track is an immutable time-indexed trajectory: strictly increasing
// waypoints plus per-span interpolation. Queries are pure.
type Track struct {
	samples []model.Waypoint
	spans   []span
}

// SpanSpec marks the samples [Lo, Hi] of a track with an interpolation mode.
type SpanSpec struct {
	Lo, Hi int
	Mode   Interpolation
}

// NewTrack builds a single-span track.
func NewTrack(samples []model.Waypoint, mode Interpolation) (*Track, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyTrack
	}
	return NewSpannedTrack(samples, []SpanSpec{{Lo: 0, Hi: len(samples) - 1, Mode: mode}})
}

// NewSpannedTrack builds a track whose spans must tile the samples: the
// first starts at 0, each next one starts where the previous ended and the
// last ends at len(samples)-1.
func NewSpannedTrack(samples []model.Waypoint, specs []SpanSpec) (*Track, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyTrack
	}
	for i := 1; i < len(samples); i++ {
		if !(samples[i].Elapsed > samples[i-1].Elapsed) {
			return nil, fmt.Errorf("sample %d at %gs after %gs: %w",
				i, samples[i].Elapsed, samples[i-1].Elapsed, ErrNonIncreasing)
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("track: no spans")
	}

	tr := &Track{samples: append([]model.Waypoint(nil), samples...)}
	next := 0
	for i, s := range specs {
		if err := s.Mode.Validate(); err != nil {
			return nil, fmt.Errorf("span %d: %w", i, err)
		}
		if s.Lo != next || s.Hi < s.Lo || s.Hi >= len(samples) {
			return nil, fmt.Errorf("span %d [%d,%d] does not tile %d samples", i, s.Lo, s.Hi, len(samples))
		}
		sp := span{lo: s.Lo, hi: s.Hi, mode: s.Mode}
		if s.Mode.Mode == ModeLinear && s.Hi > s.Lo {
			if err := sp.fit(tr.samples[s.Lo : s.Hi+1]); err != nil {
				return nil, fmt.Errorf("span %d: %w", i, err)
			}
		}
		tr.spans = append(tr.spans, sp)
		next = s.Hi
	}
	if next != len(samples)-1 {
		return nil, fmt.Errorf("spans end at sample %d, want %d", next, len(samples)-1)
	}
	return tr, nil
}

func (sp *span) fit(ws []model.Waypoint) error {
	xs := make([]float64, len(ws))
	lon := make([]float64, len(ws))
	lat := make([]float64, len(ws))
	alt := make([]float64, len(ws))
	for i, w := range ws {
		xs[i], lon[i], lat[i], alt[i] = w.Elapsed, w.Lon, w.Lat, w.Alt
	}
	sp.lon, sp.lat, sp.alt = &interp.PiecewiseLinear{}, &interp.PiecewiseLinear{}, &interp.PiecewiseLinear{}
	if err := sp.lon.Fit(xs, lon); err != nil {
		return err
	}
	if err := sp.lat.Fit(xs, lat); err != nil {
		return err
	}
	return sp.alt.Fit(xs, alt)
}

// Len returns the number of samples.
func (tr *Track) Len() int { return len(tr.samples) }

// Samples returns a copy of the samples.
func (tr *Track) Samples() []model.Waypoint {
	return append([]model.Waypoint(nil), tr.samples...)
}

// First returns the first sample.
func (tr *Track) First() model.Waypoint { return tr.samples[0] }

// Last returns the last sample.
func (tr *Track) Last() model.Waypoint { return tr.samples[len(tr.samples)-1] }

// Coverage returns the [first, last] elapsed range the track is defined on.
func (tr *Track) Coverage() model.Interval {
	return model.Interval{Start: tr.First().Elapsed, Stop: tr.Last().Elapsed}
}

// Spans returns the interpolation mode of every span with its time range.
func (tr *Track) Spans() []TrackSpan {
	out := make([]TrackSpan, len(tr.spans))
	for i, sp := range tr.spans {
		out[i] = TrackSpan{
			Interval: model.Interval{Start: tr.samples[sp.lo].Elapsed, Stop: tr.samples[sp.hi].Elapsed},
			Mode:     sp.mode,
		}
	}
	return out
}

// TrackSpan describes one span for callers.
type TrackSpan struct {
	model.Interval
	Mode Interpolation
}

// PositionAt evaluates the track at elapsed t. It reports false outside
// [first, last]; no extrapolation is ever done.
func (tr *Track) PositionAt(t float64) (model.Waypoint, bool) {
	if tr == nil || len(tr.samples) == 0 || math.IsNaN(t) {
		return model.Waypoint{}, false
	}
	n := len(tr.samples)
	if t < tr.samples[0].Elapsed || t > tr.samples[n-1].Elapsed {
		return model.Waypoint{}, false
	}

	// first sample at or after t
	j := sort.Search(n, func(i int) bool { return tr.samples[i].Elapsed >= t })
	if tr.samples[j].Elapsed == t {
		return tr.samples[j], true
	}
	i := j - 1 // bracket [i, j]

	sp := tr.spanFor(i)
	var w model.Waypoint
	switch sp.mode.Mode {
	case ModeSmooth:
		w = tr.lagrange(sp, i, t)
	default:
		w = model.Waypoint{Lon: sp.lon.Predict(t), Lat: sp.lat.Predict(t), Alt: sp.alt.Predict(t)}
	}
	w.Elapsed = t
	return w, true
}

// spanFor returns the span owning the bracket starting at sample i.
func (tr *Track) spanFor(i int) *span {
	k := sort.Search(len(tr.spans), func(k int) bool { return tr.spans[k].hi > i })
	if k == len(tr.spans) {
		k--
	}
	return &tr.spans[k]
}

// lagrange evaluates a degree-N polynomial through the N+1 samples of sp
// centred on the bracket [i, i+1].
func (tr *Track) lagrange(sp *span, i int, t float64) model.Waypoint {
	n := sp.mode.Degree + 1
	if avail := sp.hi - sp.lo + 1; n > avail {
		n = avail
	}
	lo := i - (n-2)/2
	if lo < sp.lo {
		lo = sp.lo
	}
	if lo+n-1 > sp.hi {
		lo = sp.hi - n + 1
	}
	pts := tr.samples[lo : lo+n]

	var w model.Waypoint
	for a := range pts {
		weight := 1.0
		for b := range pts {
			if a == b {
				continue
			}
			weight *= (t - pts[b].Elapsed) / (pts[a].Elapsed - pts[b].Elapsed)
		}
		w.Lon += weight * pts[a].Lon
		w.Lat += weight * pts[a].Lat
		w.Alt += weight * pts[a].Alt
	}
	return w
}

// Shift returns a copy of the track with every sample moved by dt seconds.
// Used to re-anchor ephemeris tracks onto the mission clock.
func (tr *Track) Shift(dt float64) *Track {
	samples := make([]model.Waypoint, len(tr.samples))
	for i, w := range tr.samples {
		samples[i] = w.At(w.Elapsed + dt)
	}
	specs := make([]SpanSpec, len(tr.spans))
	for i, sp := range tr.spans {
		specs[i] = SpanSpec{Lo: sp.lo, Hi: sp.hi, Mode: sp.mode}
	}
	out, err := NewSpannedTrack(samples, specs)
	if err != nil {
		// shifting preserves order and tiling
		panic(fmt.Sprintf("core: shift produced invalid track: %v", err))
	}
	return out
}

// OrientationAt derives heading and pitch at t from a centred finite
// difference of the track, then applies the policy offsets. It reports
// false when the policy asks for no orientation or t is outside coverage.
func (tr *Track) OrientationAt(t float64, policy model.OrientationPolicy) (model.Orientation, bool) {
	if policy.Mode != model.OrientationVelocity {
		return model.Orientation{}, false
	}
	cov := tr.Coverage()
	if !cov.Contains(t) || cov.Duration() == 0 {
		return model.Orientation{}, false
	}
	const h = 1.0
	t0 := math.Max(cov.Start, t-h)
	t1 := math.Min(cov.Stop, t+h)
	a, _ := tr.PositionAt(t0)
	b, _ := tr.PositionAt(t1)

	east, north, up := enuDelta(a, b)
	heading := math.Atan2(east, north)*rad2deg + policy.HeadingOffsetDeg
	heading = math.Mod(heading, 360)
	if heading < 0 {
		heading += 360
	}
	pitch := math.Atan2(up, math.Hypot(east, north))*rad2deg + policy.PitchOffsetDeg
	return model.Orientation{HeadingDeg: heading, PitchDeg: pitch}, true
}
