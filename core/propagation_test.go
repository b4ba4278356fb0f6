package core

import (
	"errors"
	"testing"
	"time"
)

// a near-circular LEO set from the catalogue: about 650 km at 69.9 degrees
var leoSet = ReferenceCatalog()[5]

func TestElementSet_Validate(t *testing.T) {
	for _, set := range ReferenceCatalog() {
		if err := set.Validate(); err != nil {
			t.Fatalf("catalog entry %s: %v", set.Name, err)
		}
	}

	bad := ReferenceCatalog()[0]
	bad.Line1 = bad.Line1[:68] + "0"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidTLE) {
		t.Fatalf("expected checksum failure, got %v", err)
	}
	short := ElementSet{Name: "short", Line1: "1 00900U", Line2: "2 00900"}
	if err := short.Validate(); !errors.Is(err, ErrInvalidTLE) {
		t.Fatalf("expected length failure, got %v", err)
	}
	if _, err := NewSGP4Propagator(short); !errors.Is(err, ErrInvalidTLE) {
		t.Fatalf("NewSGP4Propagator should reject invalid sets, got %v", err)
	}
}

func TestElementSet_NoradID(t *testing.T) {
	id, err := ReferenceCatalog()[0].NoradID()
	if err != nil || id != 900 {
		t.Fatalf("NoradID() = %d, %v", id, err)
	}
}

// Exact orbital values belong to go-satellite; these only check that the
// state moves and lands at a plausible altitude.
func TestSGP4Propagator_ChangesOverTime(t *testing.T) {
	p, err := NewSGP4Propagator(leoSet)
	if err != nil {
		t.Fatalf("NewSGP4Propagator: %v", err)
	}
	t1 := time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)
	r1, v1, err := p.Propagate(t1)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	r2, _, err := p.Propagate(t1.Add(5 * time.Minute))
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if r1 == r2 {
		t.Fatalf("expected position to change, got %+v twice", r1)
	}
	if speed := v1.Norm(); speed < 7 || speed > 8.5 {
		t.Fatalf("orbital speed %v km/s out of range", speed)
	}

	w := ECIToGeodetic(r1, t1)
	if w.Alt < 550e3 || w.Alt > 760e3 {
		t.Fatalf("altitude %v m out of range", w.Alt)
	}
	if w.Lat < -71 || w.Lat > 71 {
		t.Fatalf("latitude %v beyond inclination", w.Lat)
	}
}

func TestPropagateTrack(t *testing.T) {
	p, err := NewSGP4Propagator(leoSet)
	if err != nil {
		t.Fatalf("NewSGP4Propagator: %v", err)
	}
	epoch := time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)
	tr, err := PropagateTrack(p, epoch, 0, 7200, 60)
	if err != nil {
		t.Fatalf("PropagateTrack: %v", err)
	}
	if tr.Len() != 121 {
		t.Fatalf("got %d samples, want 121", tr.Len())
	}
	samples := tr.Samples()
	for i := 1; i < len(samples); i++ {
		if d := samples[i].Lon - samples[i-1].Lon; d > 180 || d < -180 {
			t.Fatalf("longitude jump of %v at sample %d", d, i)
		}
	}
	if _, err := PropagateTrack(p, epoch, 10, 0, 60); err == nil {
		t.Fatalf("expected error for an empty range")
	}
}

func TestGMST_IsAnAngle(t *testing.T) {
	g := GMST(time.Date(2025, 10, 3, 9, 0, 0, 0, time.UTC))
	if g < 0 || g >= 2*3.141592653589794 {
		t.Fatalf("GMST = %v rad", g)
	}
}
