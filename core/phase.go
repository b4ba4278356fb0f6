package core

import (
	"fmt"
	"sort"
)

// Phase is a named, fixed-length slice of the mission timeline.
type Phase struct {
	Name     string
	Duration float64 // seconds
}

// PhaseTable is an ordered, contiguous list of phases. Phase i starts at the
// sum of the durations of phases 0..i-1, so thresholds are always derived
// from the table rather than written down twice.
type PhaseTable struct {
	phases []Phase
	starts []float64
	index  map[string]int
}

// NewPhaseTable validates and indexes phases. Names must be unique and every
// duration positive.
func NewPhaseTable(phases ...Phase) (*PhaseTable, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("phase table: no phases")
	}
	pt := &PhaseTable{
		phases: append([]Phase(nil), phases...),
		starts: make([]float64, len(phases)+1),
		index:  make(map[string]int, len(phases)),
	}
	for i, p := range phases {
		if p.Name == "" {
			return nil, fmt.Errorf("phase table: phase %d has no name", i)
		}
		if _, dup := pt.index[p.Name]; dup {
			return nil, fmt.Errorf("phase table: duplicate phase %q", p.Name)
		}
		if !(p.Duration > 0) {
			return nil, fmt.Errorf("phase table: phase %q: %w", p.Name, ErrInvalidDuration)
		}
		pt.index[p.Name] = i
		pt.starts[i+1] = pt.starts[i] + p.Duration
	}
	return pt, nil
}

// Len returns the number of phases.
func (pt *PhaseTable) Len() int { return len(pt.phases) }

// Phases returns a copy of the phases in order.
func (pt *PhaseTable) Phases() []Phase {
	return append([]Phase(nil), pt.phases...)
}

// Start returns the elapsed second at which phase i begins. Start(Len())
// equals Total.
func (pt *PhaseTable) Start(i int) float64 {
	if i < 0 {
		return 0
	}
	if i > len(pt.phases) {
		i = len(pt.phases)
	}
	return pt.starts[i]
}

// End returns the elapsed second at which phase i ends.
func (pt *PhaseTable) End(i int) float64 { return pt.Start(i + 1) }

// Total returns the summed duration of all phases.
func (pt *PhaseTable) Total() float64 { return pt.starts[len(pt.phases)] }

// Index returns the position of the named phase.
func (pt *PhaseTable) Index(name string) (int, error) {
	i, ok := pt.index[name]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownPhase, name)
	}
	return i, nil
}

// StartOf returns the start of the named phase.
func (pt *PhaseTable) StartOf(name string) (float64, error) {
	i, err := pt.Index(name)
	if err != nil {
		return 0, err
	}
	return pt.Start(i), nil
}

// EndOf returns the end of the named phase.
func (pt *PhaseTable) EndOf(name string) (float64, error) {
	i, err := pt.Index(name)
	if err != nil {
		return 0, err
	}
	return pt.End(i), nil
}

// Interval returns the [start, end] range of the named phase.
func (pt *PhaseTable) Interval(name string) (start, end float64, err error) {
	i, err := pt.Index(name)
	if err != nil {
		return 0, 0, err
	}
	return pt.Start(i), pt.End(i), nil
}

// At returns the phase active at elapsed t. Phases are half-open
// [start, end) except the last, which also owns its end instant. Times
// outside the table report false.
func (pt *PhaseTable) At(t float64) (Phase, bool) {
	if t < 0 || t > pt.Total() {
		return Phase{}, false
	}
	i := sort.Search(len(pt.phases), func(i int) bool { return pt.starts[i+1] > t })
	if i == len(pt.phases) {
		i--
	}
	return pt.phases[i], true
}
