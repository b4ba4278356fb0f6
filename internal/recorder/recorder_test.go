package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/mission-trajectory-sim/internal/geo"
	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

var testEpoch = time.Date(2027, 3, 1, 6, 0, 0, 0, time.UTC)

func newTestRecorder(t *testing.T, every float64) *Recorder {
	t.Helper()
	rec, err := Open(Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "frames.db"), Every: every}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })
	return rec
}

func testFrame(elapsed float64) model.Frame {
	return model.Frame{
		Elapsed: elapsed,
		Epoch:   testEpoch,
		Phase:   "boost",
		Tracked: "combined-ascent",
		Mode:    model.CameraAuto,
		Bodies: []model.BodyState{
			{
				ID:       "carrier",
				Name:     "Carrier aircraft",
				Kind:     model.BodyKindAircraft,
				Position: model.Waypoint{Elapsed: elapsed, Lon: -16.5, Lat: 3.3, Alt: 12000},
			},
			{
				ID:          "combined-ascent",
				Name:        "Combined vehicle",
				Kind:        model.BodyKindLauncher,
				Position:    model.Waypoint{Elapsed: elapsed, Lon: -16.4, Lat: 3.4, Alt: 30000},
				Orientation: &model.Orientation{HeadingDeg: 45, PitchDeg: 60},
			},
		},
	}
}

func TestOpenDB_UnknownDriver(t *testing.T) {
	_, err := OpenDB("mysql", "")
	require.ErrorIs(t, err, ErrUnknownDriver)
}

func TestRecordBeforeStartRun(t *testing.T) {
	rec := newTestRecorder(t, 0)
	_, err := rec.Record(context.Background(), testFrame(0))
	require.ErrorIs(t, err, ErrNoRun)
}

func TestAddRunBodies(t *testing.T) {
	ctx := context.Background()
	rec := newTestRecorder(t, 0)
	require.ErrorIs(t, rec.AddRunBodies(ctx, model.BodyDefinition{ID: "gmat-satellite"}), ErrNoRun)

	runID, err := rec.StartRun(ctx, "abc123", testEpoch, []model.BodyDefinition{
		{ID: "carrier", Kind: model.BodyKindAircraft},
		{ID: "satellite", Kind: model.BodyKindSatellite},
	})
	require.NoError(t, err)

	require.NoError(t, rec.AddRunBodies(ctx,
		model.BodyDefinition{ID: "satellite", Kind: model.BodyKindSatellite},
		model.BodyDefinition{ID: "gmat-satellite", Kind: model.BodyKindSatellite, Source: model.BodySourceEphemeris},
	))
	require.NoError(t, rec.AddRunBodies(ctx, model.BodyDefinition{ID: "gmat-satellite"}))

	ids, err := rec.RunBodies(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, []string{"carrier", "satellite", "gmat-satellite"}, ids)
}

func TestFramesRoundTrip(t *testing.T) {
	ctx := context.Background()
	rec := newTestRecorder(t, 0)

	runID, err := rec.StartRun(ctx, "abc123", testEpoch, []model.BodyDefinition{
		{ID: "carrier", Kind: model.BodyKindAircraft},
	})
	require.NoError(t, err)

	want := testFrame(3200)
	ok, err := rec.Record(ctx, want)
	require.NoError(t, err)
	require.True(t, ok)

	frames, err := rec.Frames(ctx, runID)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	got := frames[0]
	assert.Equal(t, 3200.0, got.Elapsed)
	assert.True(t, got.Epoch.Equal(testEpoch))
	assert.Equal(t, "boost", got.Phase)
	assert.Equal(t, "combined-ascent", got.Tracked)
	assert.Equal(t, model.CameraAuto, got.Mode)
	require.Len(t, got.Bodies, 2)

	carrier, ok := got.Body("carrier")
	require.True(t, ok)
	assert.Equal(t, model.BodyKindAircraft, carrier.Kind)
	assert.Equal(t, want.Bodies[0].Position, carrier.Position)
	assert.Nil(t, carrier.Orientation)

	combined, ok := got.Body("combined-ascent")
	require.True(t, ok)
	require.NotNil(t, combined.Orientation)
	assert.Equal(t, 45.0, combined.Orientation.HeadingDeg)
	assert.Equal(t, 60.0, combined.Orientation.PitchDeg)
}

func TestRecordThrottlesByMissionTime(t *testing.T) {
	ctx := context.Background()
	rec := newTestRecorder(t, 10)
	runID, err := rec.StartRun(ctx, "s", testEpoch, nil)
	require.NoError(t, err)

	var written []float64
	for _, e := range []float64{0, 4, 9.9, 10, 15, 25, 12} {
		ok, err := rec.Record(ctx, testFrame(e))
		require.NoError(t, err)
		if ok {
			written = append(written, e)
		}
	}
	// 12 is a backward scrub of 13 s from 25 and is kept.
	assert.Equal(t, []float64{0, 10, 25, 12}, written)

	frames, err := rec.Frames(ctx, runID)
	require.NoError(t, err)
	require.Len(t, frames, 4)
	assert.Equal(t, 0.0, frames[0].Elapsed)
	assert.Equal(t, 12.0, frames[2].Elapsed)
}

func TestManualModeRoundTrips(t *testing.T) {
	ctx := context.Background()
	rec := newTestRecorder(t, 0)
	runID, err := rec.StartRun(ctx, "s", testEpoch, nil)
	require.NoError(t, err)

	f := testFrame(5)
	f.Mode = model.CameraManual
	_, err = rec.Record(ctx, f)
	require.NoError(t, err)

	frames, err := rec.Frames(ctx, runID)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, model.CameraManual, frames[0].Mode)
}

func TestGroundTrackRoundTrip(t *testing.T) {
	ctx := context.Background()
	rec := newTestRecorder(t, 0)

	require.ErrorIs(t, rec.SaveGroundTrack(ctx, "carrier", mustLineString(t)), ErrNoRun)

	runID, err := rec.StartRun(ctx, "s", testEpoch, nil)
	require.NoError(t, err)
	require.NoError(t, rec.SaveGroundTrack(ctx, "carrier", mustLineString(t)))

	ls, err := rec.LoadGroundTrack(ctx, runID, "carrier")
	require.NoError(t, err)
	ws := geo.Waypoints(ls)
	require.Len(t, ws, 3)
	assert.InDelta(t, -17.0, ws[0].Lon, 1e-6)
	assert.InDelta(t, 3.0, ws[0].Lat, 1e-6)
	assert.Equal(t, 9000.0, ws[1].Alt)
	assert.Equal(t, 120.0, ws[2].Elapsed)

	_, err = rec.LoadGroundTrack(ctx, runID, "missing")
	require.Error(t, err)
}

func mustLineString(t *testing.T) geom.LineString {
	t.Helper()
	ls, err := geo.LineString([]model.Waypoint{
		{Elapsed: 0, Lon: -17, Lat: 3, Alt: 0},
		{Elapsed: 60, Lon: -16.9, Lat: 3.1, Alt: 9000},
		{Elapsed: 120, Lon: -16.8, Lat: 3.2, Alt: 12000},
	})
	require.NoError(t, err)
	return ls
}
