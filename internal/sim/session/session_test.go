package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/mission-trajectory-sim/core"
	"github.com/signalsfoundry/mission-trajectory-sim/model"
	"github.com/signalsfoundry/mission-trajectory-sim/timectrl"
)

var (
	missionOnce sync.Once
	mission     *core.Mission
	missionErr  error
)

// testMission builds the authored mission once; tracks are immutable so
// sessions can share it.
func testMission(t *testing.T) *core.Mission {
	t.Helper()
	missionOnce.Do(func() {
		cfg := core.DefaultMissionConfig()
		cfg.ReferenceSatellites = cfg.ReferenceSatellites[:1]
		cfg.ReferenceWindow = 600
		mission, missionErr = core.BuildAirLaunchMission(cfg)
	})
	if missionErr != nil {
		t.Fatalf("BuildAirLaunchMission: %v", missionErr)
	}
	return mission
}

type recordingMetrics struct {
	ticks     int
	bodies    int
	retargets []string
	matched   int
	dropped   int
}

func (r *recordingMetrics) RecordTick(float64)         { r.ticks++ }
func (r *recordingMetrics) SetBodiesAttached(n int)    { r.bodies = n }
func (r *recordingMetrics) RecordRetarget(body string) { r.retargets = append(r.retargets, body) }
func (r *recordingMetrics) RecordMerge(matched, dropped int) {
	r.matched += matched
	r.dropped += dropped
}

func ephemerisBatch() core.EphemerisBatch {
	var b core.EphemerisBatch
	for i := 0; i < 20; i++ {
		e := float64(i * 60)
		b.Primary = append(b.Primary, model.EphemerisRow{Elapsed: e, Alt: 679860, Lat: 0.15, Lon: 161.2 + float64(i)*0.5})
		b.Dependent = append(b.Dependent, model.AltitudeRow{Elapsed: e + 2, Alt: 679000 - e})
	}
	return b
}

// tickAt moves the clock to elapsed and runs one tick there.
func tickAt(s *Session, elapsed float64) model.Frame {
	s.Clock().AdvanceTo(elapsed)
	return s.Tick()
}

func TestNewRejectsNilMission(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoMission) {
		t.Fatalf("expected ErrNoMission, got %v", err)
	}
}

func TestNewRegistersMissionBodies(t *testing.T) {
	m := testMission(t)
	metrics := &recordingMetrics{}
	s, err := New(m, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Bodies().Len() != len(m.Bodies) || metrics.bodies != len(m.Bodies) {
		t.Fatalf("registered %d bodies (metric %d), want %d", s.Bodies().Len(), metrics.bodies, len(m.Bodies))
	}
	if got := s.Frame(0).Tracked; got != core.BodyCarrier {
		t.Fatalf("initial target %q, want carrier", got)
	}
	if s.DeploymentTime() != 3884 {
		t.Fatalf("deployment at %v, want 3884", s.DeploymentTime())
	}
}

func TestTickFollowsCameraSequence(t *testing.T) {
	metrics := &recordingMetrics{}
	s, err := New(testMission(t), WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	steps := []struct {
		t     float64
		want  string
		phase string
	}{
		{0, core.BodyCarrier, core.PhaseCarrierFlight},
		{3163, core.BodyCarrier, core.PhaseCarrierFlight},
		{3164, core.BodyCombinedAscent, core.PhaseBoost},
		{3343, core.BodyCombinedAscent, core.PhaseBoost},
		{3344, core.BodyUpperStage, core.PhaseUpperStageAscent},
		{3883, core.BodyUpperStage, core.PhaseUpperStageAscent},
		{3884, core.BodyUpperStage, core.PhaseDeployment},
		{3943, core.BodyUpperStage, core.PhaseDeployment},
		{3944, core.BodySatellite, core.PhaseOrbit},
	}
	for _, st := range steps {
		f := tickAt(s, st.t)
		if f.Tracked != st.want || f.Phase != st.phase {
			t.Fatalf("t=%v: tracked %q phase %q, want %q %q", st.t, f.Tracked, f.Phase, st.want, st.phase)
		}
		if _, ok := f.Body(f.Tracked); !ok {
			t.Fatalf("t=%v: tracked body %q is not in the frame", st.t, f.Tracked)
		}
	}
	want := []string{core.BodyCarrier, core.BodyCombinedAscent, core.BodyUpperStage, core.BodySatellite}
	if len(metrics.retargets) != len(want) {
		t.Fatalf("retargets %v, want %v", metrics.retargets, want)
	}
	for i := range want {
		if metrics.retargets[i] != want[i] {
			t.Fatalf("retargets %v, want %v", metrics.retargets, want)
		}
	}
	if metrics.ticks != len(steps) {
		t.Fatalf("ticks = %d", metrics.ticks)
	}
}

func TestScrubBackAndForthReproducesTarget(t *testing.T) {
	s, err := New(testMission(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tickAt(s, 3500)
	first := s.Frame(3500)
	s.Scrub(100)
	if got := s.Frame(100).Tracked; got != core.BodyCarrier {
		t.Fatalf("after scrubbing back, tracked %q", got)
	}
	if got := s.Scrub(3500); got != 3500 {
		t.Fatalf("Scrub returned %v", got)
	}
	again := s.Frame(3500)
	if again.Tracked != first.Tracked || len(again.Bodies) != len(first.Bodies) {
		t.Fatalf("scrub round trip changed the frame: %q vs %q", again.Tracked, first.Tracked)
	}
	for i := range first.Bodies {
		if first.Bodies[i].Position != again.Bodies[i].Position {
			t.Fatalf("body %s moved: %+v vs %+v", first.Bodies[i].ID, first.Bodies[i].Position, again.Bodies[i].Position)
		}
	}
	if got := s.Scrub(-50); got != 0 {
		t.Fatalf("Scrub below start returned %v", got)
	}
}

func TestToggleReleasesAndRestoresCamera(t *testing.T) {
	s, err := New(testMission(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tickAt(s, 3200)
	if mode := s.Toggle(); mode != model.CameraManual {
		t.Fatalf("mode = %v", mode)
	}
	f := tickAt(s, 3400)
	if f.Tracked != "" || f.Mode != model.CameraManual {
		t.Fatalf("manual frame tracked %q mode %v", f.Tracked, f.Mode)
	}
	if mode := s.Toggle(); mode != model.CameraAuto {
		t.Fatalf("mode = %v", mode)
	}
	if got := s.Frame(3400).Tracked; got != core.BodyUpperStage {
		t.Fatalf("auto should re-evaluate at once, tracked %q", got)
	}
}

func TestAttachEphemerisIsIdempotent(t *testing.T) {
	metrics := &recordingMetrics{}
	s, err := New(testMission(t), WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	base := s.Bodies().Len()

	added, err := s.AttachEphemeris(ephemerisBatch())
	if err != nil || added != 2 {
		t.Fatalf("first attach = %d, %v", added, err)
	}
	added, err = s.AttachEphemeris(ephemerisBatch())
	if err != nil || added != 0 {
		t.Fatalf("second attach = %d, %v", added, err)
	}
	if s.Bodies().Len() != base+2 || metrics.matched != 40 {
		t.Fatalf("len %d, matched %d", s.Bodies().Len(), metrics.matched)
	}

	e, err := s.Bodies().Get(core.BodyGMATSatellite)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Definition.Active.Start != 3884 {
		t.Fatalf("ephemeris satellite starts at %v, want 3884", e.Definition.Active.Start)
	}
}

func TestAwaitedEphemerisTakesOverCamera(t *testing.T) {
	s, err := New(testMission(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch := make(chan core.EphemerisBatch, 1)
	s.Await(ch)

	if got := tickAt(s, 4000).Tracked; got != core.BodySatellite {
		t.Fatalf("before the load completes, tracked %q", got)
	}
	ch <- ephemerisBatch()
	close(ch)
	f := tickAt(s, 4001)
	if f.Tracked != core.BodyGMATSatellite {
		t.Fatalf("after the load, tracked %q", f.Tracked)
	}
	if _, ok := f.Body(core.BodyGMATUpperStage); !ok {
		t.Fatalf("merged upper stage missing from frame")
	}
	tickAt(s, 4002)
}

func TestCameraLeavesEphemerisSatelliteAfterReportEnds(t *testing.T) {
	s, err := New(testMission(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// The report covers 0-1140 s after deployment.
	if _, err := s.AttachEphemeris(ephemerisBatch()); err != nil {
		t.Fatalf("AttachEphemeris: %v", err)
	}
	if got := tickAt(s, 4500).Tracked; got != core.BodyGMATSatellite {
		t.Fatalf("inside the report, tracked %q", got)
	}
	f := tickAt(s, 20000)
	if f.Tracked != core.BodySatellite {
		t.Fatalf("after the report, tracked %q", f.Tracked)
	}
	if _, ok := f.Body(f.Tracked); !ok {
		t.Fatalf("tracked body %q is not in the frame", f.Tracked)
	}
	if _, ok := f.Body(core.BodyGMATSatellite); ok {
		t.Fatalf("ephemeris satellite still visible at 20000")
	}
}

func TestTickDoesNotUndoScrub(t *testing.T) {
	s, err := New(testMission(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tickAt(s, 3100)

	// A driver steps the clock, then a scrub lands before its tick runs.
	stale := s.Clock().Step(10 * time.Second)
	if stale != 3110 {
		t.Fatalf("Step = %v", stale)
	}
	if got := s.Scrub(3900); got != 3900 {
		t.Fatalf("Scrub = %v", got)
	}
	f := s.Tick()
	if f.Elapsed != 3900 || s.Clock().Now() != 3900 {
		t.Fatalf("tick after scrub: frame at %v, clock at %v", f.Elapsed, s.Clock().Now())
	}
	if f.Tracked != core.BodyUpperStage {
		t.Fatalf("tracked %q, want upper stage", f.Tracked)
	}
}

func TestFailedEphemerisLeavesBodiesAbsent(t *testing.T) {
	s, err := New(testMission(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	base := s.Bodies().Len()
	added, err := s.AttachEphemeris(core.EphemerisBatch{PrimaryErr: errors.New("404"), DependentErr: errors.New("404")})
	if err != nil || added != 0 || s.Bodies().Len() != base {
		t.Fatalf("added %d, err %v", added, err)
	}
	if got := tickAt(s, 5000).Tracked; got != core.BodySatellite {
		t.Fatalf("tracked %q, want synthetic satellite", got)
	}
}

func TestRateAndPause(t *testing.T) {
	clock := timectrl.NewMissionClock(testMission(t).Epoch, 0, 100, timectrl.LoopNone)
	s, err := New(testMission(t), WithClock(clock), WithDeploymentMargin(30))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.SetRate(60)
	if clock.Rate() != 60 {
		t.Fatalf("rate = %v", clock.Rate())
	}
	if !s.TogglePause() || !clock.Paused() {
		t.Fatalf("expected paused")
	}
	if s.TogglePause() {
		t.Fatalf("expected resumed")
	}
}

func TestPhaseAtOutsideMission(t *testing.T) {
	s, err := New(testMission(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := s.PhaseAt(-1); got != "" {
		t.Fatalf("PhaseAt(-1) = %q", got)
	}
	if got := s.PhaseAt(182144); got != core.PhaseDeorbit {
		t.Fatalf("PhaseAt(end) = %q", got)
	}
}
