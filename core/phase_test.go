package core

import (
	"errors"
	"testing"
)

func defaultPhases(t *testing.T) *PhaseTable {
	t.Helper()
	pt, err := DefaultMissionConfig().Phases()
	if err != nil {
		t.Fatalf("Phases: %v", err)
	}
	return pt
}

func TestPhaseTable_StartsAreCumulative(t *testing.T) {
	pt := defaultPhases(t)

	want := map[string][2]float64{
		PhaseCarrierFlight:    {0, 3164},
		PhaseBoost:            {3164, 3344},
		PhaseUpperStageAscent: {3344, 3884},
		PhaseDeployment:       {3884, 3944},
		PhaseOrbit:            {3944, 9344},
		PhaseDeorbit:          {9344, 182144},
	}
	for name, w := range want {
		start, end, err := pt.Interval(name)
		if err != nil {
			t.Fatalf("Interval(%q): %v", name, err)
		}
		if start != w[0] || end != w[1] {
			t.Fatalf("Interval(%q) = [%v,%v], want %v", name, start, end, w)
		}
	}
	if pt.Total() != 182144 {
		t.Fatalf("Total() = %v", pt.Total())
	}
	for i := 1; i < pt.Len(); i++ {
		if pt.Start(i) != pt.End(i-1) {
			t.Fatalf("phase %d does not start where %d ends", i, i-1)
		}
	}
}

func TestPhaseTable_At(t *testing.T) {
	pt := defaultPhases(t)

	tests := []struct {
		t    float64
		want string
		ok   bool
	}{
		{0, PhaseCarrierFlight, true},
		{3163.9, PhaseCarrierFlight, true},
		{3164, PhaseBoost, true},
		{3884, PhaseDeployment, true},
		{182144, PhaseDeorbit, true},
		{-1, "", false},
		{182145, "", false},
	}
	for _, tt := range tests {
		p, ok := pt.At(tt.t)
		if ok != tt.ok || p.Name != tt.want {
			t.Fatalf("At(%v) = %q,%v want %q,%v", tt.t, p.Name, ok, tt.want, tt.ok)
		}
	}
}

func TestPhaseTable_Errors(t *testing.T) {
	if _, err := NewPhaseTable(); err == nil {
		t.Fatalf("expected error for empty table")
	}
	if _, err := NewPhaseTable(Phase{Name: "a", Duration: 1}, Phase{Name: "a", Duration: 2}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	if _, err := NewPhaseTable(Phase{Name: "a", Duration: 0}); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}

	pt := defaultPhases(t)
	if _, err := pt.StartOf("landing"); !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("expected ErrUnknownPhase, got %v", err)
	}
}
