package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// DefaultContinuityEpsilon is the largest hand-off gap, in metres, tolerated
// between adjacent segments.
const DefaultContinuityEpsilon = 1.0

// Segment is one curve of a body's chain with its sampling policy.
type Segment struct {
	Name   string
	Curve  Curve
	Step   float64 // sample interval, seconds
	Interp Interpolation
}

// Chain is the ordered list of segments that make up a body's authored
// trajectory. Build each curve from Chain.End so the boundary value is
// threaded from one segment to the next:
//
//	ch := NewChain("carrier", runway)
//	ch.Append(Segment{Name: "taxi", Curve: NewLinear(ch.End(), holdShort, 65), Step: 5, Interp: Smooth(3)})
type Chain struct {
	body     string
	start    model.Waypoint
	segments []Segment
}

// NewChain starts a chain at start.
func NewChain(body string, start model.Waypoint) *Chain {
	return &Chain{body: body, start: start}
}

// Body returns the chain's body id.
func (c *Chain) Body() string { return c.body }

// Append adds a segment and returns the chain for chaining calls.
func (c *Chain) Append(seg Segment) *Chain {
	c.segments = append(c.segments, seg)
	return c
}

// Segments returns the chain's segments in order.
func (c *Chain) Segments() []Segment {
	return append([]Segment(nil), c.segments...)
}

// End returns the terminal waypoint of the last segment, or the chain start
// when the chain is empty.
func (c *Chain) End() model.Waypoint {
	if len(c.segments) == 0 {
		return c.start
	}
	return CurveEnd(c.segments[len(c.segments)-1].Curve)
}

// Build samples every segment, both endpoints included, into one track. The
// first sample of each segment after the first duplicates the previous
// segment's last one and is dropped; that shared sample becomes the
// boundary between the two spans.
func (c *Chain) Build() (*Track, error) {
	if len(c.segments) == 0 {
		return nil, fmt.Errorf("chain %s: %w", c.body, ErrEmptyTrack)
	}
	var samples []model.Waypoint
	var specs []SpanSpec
	for i, seg := range c.segments {
		if err := seg.Interp.Validate(); err != nil {
			return nil, fmt.Errorf("chain %s segment %s: %w", c.body, seg.Name, err)
		}
		d := seg.Curve.Duration()
		if !(d > 0) {
			return nil, fmt.Errorf("chain %s segment %s: %w", c.body, seg.Name, ErrInvalidDuration)
		}
		if !(seg.Step > 0) {
			return nil, fmt.Errorf("chain %s segment %s: step must be positive", c.body, seg.Name)
		}

		pts := sampleCurve(seg.Curve, seg.Step)
		lo := 0
		if i > 0 {
			pts = pts[1:]
			lo = len(samples) - 1
		}
		samples = append(samples, pts...)
		specs = append(specs, SpanSpec{Lo: lo, Hi: len(samples) - 1, Mode: seg.Interp})
	}
	tr, err := NewSpannedTrack(samples, specs)
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", c.body, err)
	}
	return tr, nil
}

// sampleCurve samples c every step seconds and always includes the end.
func sampleCurve(c Curve, step float64) []model.Waypoint {
	d := c.Duration()
	n := int(math.Ceil(d/step - 1e-9))
	out := make([]model.Waypoint, 0, n+1)
	for k := 0; k < n; k++ {
		out = append(out, c.At(float64(k)*step))
	}
	return append(out, c.At(d))
}

// Violation is one discontinuous hand-off between adjacent segments.
type Violation struct {
	Before, After string
	Gap           float64 // metres
	TimeGap       float64 // seconds
}

// DiscontinuityError lists every hand-off of a body that exceeds the
// continuity epsilon.
type DiscontinuityError struct {
	Body       string
	Epsilon    float64
	Violations []Violation
}

func (e *DiscontinuityError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s->%s gap %.3fm dt %.3fs", v.Before, v.After, v.Gap, v.TimeGap)
	}
	return fmt.Sprintf("%s: %d discontinuities over %.3gm: %s",
		e.Body, len(e.Violations), e.Epsilon, strings.Join(parts, ", "))
}

// ValidateContinuity checks that every segment starts where the previous one
// ended, within eps metres and at the same instant. It returns a
// *DiscontinuityError listing every offending pair, or nil.
func (c *Chain) ValidateContinuity(eps float64) error {
	derr := &DiscontinuityError{Body: c.body, Epsilon: eps}
	prevName := "start"
	prevEnd := c.start
	for _, seg := range c.segments {
		start := CurveStart(seg.Curve)
		gap := Distance(prevEnd, start)
		dt := start.Elapsed - prevEnd.Elapsed
		if gap > eps || math.Abs(dt) > 1e-6 {
			derr.Violations = append(derr.Violations, Violation{
				Before: prevName, After: seg.Name, Gap: gap, TimeGap: dt,
			})
		}
		prevName = seg.Name
		prevEnd = CurveEnd(seg.Curve)
	}
	if len(derr.Violations) > 0 {
		return derr
	}
	return nil
}
