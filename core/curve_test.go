package core

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

func sameSpot(a, b model.Waypoint, tol float64) bool {
	return scalar.EqualWithinAbs(a.Lon, b.Lon, tol) &&
		scalar.EqualWithinAbs(a.Lat, b.Lat, tol) &&
		scalar.EqualWithinAbs(a.Alt, b.Alt, tol)
}

func TestPowerLaw_EndpointsAndProfile(t *testing.T) {
	from := model.Waypoint{Elapsed: 100, Lon: 1, Lat: 2, Alt: 130000}
	to := model.Waypoint{Lon: 5, Lat: 2, Alt: 450000}
	c := NewPowerLaw(from, to, 270, Shape{AltExp: 0.65, LatBulge: 2.5})

	if got := CurveStart(c); got != from {
		t.Fatalf("start = %+v, want %+v", got, from)
	}
	end := CurveEnd(c)
	if end.Elapsed != 370 || !sameSpot(end, to, 1e-9) {
		t.Fatalf("end = %+v, want %+v at 370", end, to)
	}

	mid := c.At(135)
	wantAlt := 130000 + 320000*math.Pow(0.5, 0.65)
	if !scalar.EqualWithinAbs(mid.Alt, wantAlt, 1e-6) {
		t.Fatalf("mid alt = %v, want %v", mid.Alt, wantAlt)
	}
	if !scalar.EqualWithinAbs(mid.Lat, 2+2.5, 1e-9) {
		t.Fatalf("mid lat with bulge = %v, want 4.5", mid.Lat)
	}

	// clamped outside [0, duration]
	if c.At(-5) != from || c.At(1000).Elapsed != 370 {
		t.Fatalf("At does not clamp")
	}
}

func TestFreeFall(t *testing.T) {
	from := model.Waypoint{Elapsed: 3164, Lon: -16.493, Lat: 3.336, Alt: 12000}
	c := NewFreeFall(from, 3, 10)
	end := CurveEnd(c)
	if end.Alt != 11955 || end.Lon != from.Lon || end.Lat != from.Lat || end.Elapsed != 3167 {
		t.Fatalf("free fall end = %+v", end)
	}
}

func TestSpiral_StartsAtAnchor(t *testing.T) {
	from := model.Waypoint{Elapsed: 9344, Lon: 131.2, Lat: 10.5, Alt: 679860}
	c := NewSpiral(from, 172800, SpiralShape{Revolutions: 20, Radius: 30, Shrink: 0.5, AltExp: 0.8})

	if got := CurveStart(c); !sameSpot(got, from, 1e-9) || got.Elapsed != from.Elapsed {
		t.Fatalf("spiral start = %+v, want %+v", got, from)
	}
	end := CurveEnd(c)
	if !scalar.EqualWithinAbs(end.Alt, 0, 1e-6) {
		t.Fatalf("spiral should decay to the floor, got %v", end.Alt)
	}
	// 20 full turns bring the angle back to zero at half the radius
	if !scalar.EqualWithinAbs(end.Lon, from.Lon-30+15, 1e-6) || !scalar.EqualWithinAbs(end.Lat, from.Lat, 1e-6) {
		t.Fatalf("spiral end = %+v", end)
	}
}

func TestOrbitSweep_StartsAtInjection(t *testing.T) {
	from := model.Waypoint{Elapsed: 3884, Lon: 161.236329, Lat: 0.150964, Alt: 679860}
	c := NewOrbitSweep(from, 5400, OrbitShape{Period: 5400, RadiusLon: 30, RadiusLat: 20, InclinationDeg: 14.7})

	if got := CurveStart(c); !sameSpot(got, from, 1e-9) {
		t.Fatalf("orbit start = %+v, want %+v", got, from)
	}
	quarter := c.At(1350)
	wantLat := from.Lat + 20*math.Cos(14.7*math.Pi/180)
	if !scalar.EqualWithinAbs(quarter.Lon, from.Lon-30, 1e-9) || !scalar.EqualWithinAbs(quarter.Lat, wantLat, 1e-9) {
		t.Fatalf("quarter orbit = %+v", quarter)
	}
	if quarter.Alt != from.Alt {
		t.Fatalf("orbit altitude changed: %v", quarter.Alt)
	}
	if end := CurveEnd(c); !sameSpot(end, from, 1e-9) {
		t.Fatalf("a full period should return to injection, got %+v", end)
	}
}

func TestPolyline(t *testing.T) {
	from := model.Waypoint{Elapsed: 100, Lon: 0, Lat: 0, Alt: 1000}
	c, err := NewPolyline(from, []model.Waypoint{
		{Elapsed: 10, Lon: 1, Lat: 0, Alt: 1000},
		{Elapsed: 30, Lon: 1, Lat: 2, Alt: 0},
	})
	if err != nil {
		t.Fatalf("NewPolyline: %v", err)
	}
	if c.Duration() != 30 {
		t.Fatalf("Duration() = %v", c.Duration())
	}
	if got := c.At(0); got != from {
		t.Fatalf("At(0) = %+v", got)
	}
	if got := c.At(20); !sameSpot(got, model.Waypoint{Lon: 1, Lat: 1, Alt: 500}, 1e-12) || got.Elapsed != 120 {
		t.Fatalf("At(20) = %+v", got)
	}

	if _, err := NewPolyline(from, []model.Waypoint{{Elapsed: 10}, {Elapsed: 10}}); !errors.Is(err, ErrNonIncreasing) {
		t.Fatalf("expected ErrNonIncreasing, got %v", err)
	}
	if _, err := NewPolyline(from, nil); !errors.Is(err, ErrEmptyTrack) {
		t.Fatalf("expected ErrEmptyTrack, got %v", err)
	}
}

func TestHold(t *testing.T) {
	from := model.Waypoint{Elapsed: 5, Lon: 1, Lat: 2, Alt: 3}
	c := NewHold(from, 60)
	if got := CurveEnd(c); !sameSpot(got, from, 0) || got.Elapsed != 65 {
		t.Fatalf("hold end = %+v", got)
	}
}
