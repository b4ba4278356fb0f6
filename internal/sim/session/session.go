package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/mission-trajectory-sim/core"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/logging"
	"github.com/signalsfoundry/mission-trajectory-sim/kb"
	"github.com/signalsfoundry/mission-trajectory-sim/model"
	"github.com/signalsfoundry/mission-trajectory-sim/timectrl"
)

// ErrNoMission is returned when a session is built without a mission.
var ErrNoMission = errors.New("session: mission is nil")

// ErrBodyNotFound re-exports the registry sentinel so callers can depend on
// session.* alone.
var ErrBodyNotFound = kb.ErrBodyNotFound

// MetricsRecorder receives engine-level measurements.
// observability.EngineCollector satisfies it.
type MetricsRecorder interface {
	RecordTick(elapsed float64)
	SetBodiesAttached(n int)
	RecordRetarget(body string)
	RecordMerge(matched, dropped int)
}

// Session coordinates one playback of a mission: the clock, the body
// registry, the camera and any ephemeris loads still in flight. Frames are
// pure functions of mission time and the attached bodies; the camera is the
// only state a tick changes.
type Session struct {
	// mu guards camera and pending. The clock and registry lock
	// themselves; take mu before calling into either.
	mu sync.Mutex

	mission  *core.Mission
	clock    *timectrl.MissionClock
	bodies   *kb.Registry
	camera   *core.CameraFocusController
	deployAt float64

	tolerance float64
	margin    float64
	pending   []<-chan core.EphemerisBatch

	ctx     context.Context
	log     logging.Logger
	metrics MetricsRecorder
}

// Option customises Session construction.
type Option func(*Session)

// WithLogger attaches a structured logger; the session annotates it with a
// session_id.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics attaches an optional metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock replaces the default clock, which runs at 1x over the whole
// phase table and clamps at its ends.
func WithClock(c *timectrl.MissionClock) Option {
	return func(s *Session) { s.clock = c }
}

// WithMergeTolerance sets the dependent-to-primary match tolerance in
// seconds.
func WithMergeTolerance(tol float64) Option {
	return func(s *Session) {
		if tol > 0 {
			s.tolerance = tol
		}
	}
}

// WithDeploymentMargin sets how long the camera stays on the upper stage
// after deployment.
func WithDeploymentMargin(margin float64) Option {
	return func(s *Session) {
		if margin >= 0 {
			s.margin = margin
		}
	}
}

// New registers every body of m and points the camera at the body that
// should be followed at the clock's start.
func New(m *core.Mission, opts ...Option) (*Session, error) {
	if m == nil {
		return nil, ErrNoMission
	}
	s := &Session{
		mission:   m,
		bodies:    kb.NewRegistry(),
		tolerance: core.DefaultMergeTolerance,
		margin:    core.DefaultDeploymentMargin,
		log:       logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.ctx, s.log = logging.WithSessionLogger(context.Background(), s.log)
	if s.clock == nil {
		s.clock = timectrl.NewMissionClock(m.Epoch, 0, m.Phases.Total(), timectrl.LoopNone)
	}

	deployAt, err := m.Phases.StartOf(core.PhaseDeployment)
	if err != nil {
		return nil, err
	}
	s.deployAt = deployAt
	th, err := core.ThresholdsFromPhases(m.Phases, s.margin)
	if err != nil {
		return nil, err
	}
	s.camera = core.NewCameraFocusController(th, core.CameraTargets{
		Carrier:            core.BodyCarrier,
		Combined:           core.BodyCombinedAscent,
		UpperStage:         core.BodyUpperStage,
		Satellite:          core.BodySatellite,
		EphemerisSatellite: core.BodyGMATSatellite,
	}, s.visibleAt)

	s.bodies.Subscribe(func(ev kb.Event) {
		if s.metrics != nil {
			s.metrics.SetBodiesAttached(s.bodies.Len())
		}
		s.log.Debug(s.ctx, "body attached",
			logging.String("body", ev.Body.ID),
			logging.String("source", ev.Body.Source.String()))
	})
	for _, b := range m.Bodies {
		if _, err := s.bodies.Attach(b.BodyDefinition, b.Track); err != nil {
			return nil, fmt.Errorf("register %s: %w", b.ID, err)
		}
	}

	s.mu.Lock()
	s.retargetLocked(s.clock.Now())
	s.mu.Unlock()

	s.log.Info(s.ctx, "session ready",
		logging.Int("bodies", s.bodies.Len()),
		logging.Float("duration", m.Phases.Total()),
		logging.String("epoch", m.Epoch.String()))
	return s, nil
}

// Mission returns the authored mission.
func (s *Session) Mission() *core.Mission { return s.mission }

// Clock returns the session clock.
func (s *Session) Clock() *timectrl.MissionClock { return s.clock }

// Bodies returns the body registry.
func (s *Session) Bodies() *kb.Registry { return s.bodies }

// DeploymentTime is the mission instant ephemeris reports are anchored to.
func (s *Session) DeploymentTime() float64 { return s.deployAt }

// Context returns the session-scoped context carrying the session_id.
func (s *Session) Context() context.Context { return s.ctx }

// Tick attaches any ephemeris loads that have completed, updates the camera
// at the clock's current time and returns the frame for it. The clock is
// read under the same lock Scrub holds, so a scrub is never undone by a tick
// computed before it.
func (s *Session) Tick() model.Frame {
	s.mu.Lock()
	elapsed := s.clock.Now()
	s.drainLocked()
	s.retargetLocked(elapsed)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordTick(elapsed)
	}
	return s.Frame(elapsed)
}

// Frame returns the scene at t without changing any state.
func (s *Session) Frame(t float64) model.Frame {
	s.mu.Lock()
	tracked, mode := s.camera.Tracked(), s.camera.Mode()
	s.mu.Unlock()

	f := model.Frame{
		Elapsed: t,
		Epoch:   s.mission.Epoch,
		Phase:   s.PhaseAt(t),
		Tracked: tracked,
		Mode:    mode,
	}
	for _, e := range s.bodies.List() {
		if st, ok := core.BodyStateAt(e.Definition, e.Trajectory, t); ok {
			f.Bodies = append(f.Bodies, st)
		}
	}
	return f
}

// PhaseAt returns the name of the phase containing t, or "" outside the
// mission.
func (s *Session) PhaseAt(t float64) string {
	p, ok := s.mission.Phases.At(t)
	if !ok {
		return ""
	}
	return p.Name
}

// Toggle switches the camera between automatic and manual.
func (s *Session) Toggle() model.CameraMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	before := s.camera.Tracked()
	mode := s.camera.Toggle(now)
	if after := s.camera.Tracked(); after != "" && after != before && s.metrics != nil {
		s.metrics.RecordRetarget(after)
	}
	s.log.Info(s.ctx, "camera mode changed", logging.String("mode", mode.String()), logging.Float("elapsed", now))
	return mode
}

// Scrub jumps the clock to t, clamped to its bounds, and re-evaluates the
// camera there. It returns the clamped time.
func (s *Session) Scrub(t float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t = s.clock.Scrub(t)
	s.retargetLocked(t)
	return t
}

// SetRate sets the playback rate multiplier; negative plays backwards.
func (s *Session) SetRate(rate float64) {
	s.clock.SetRate(rate)
	s.log.Debug(s.ctx, "playback rate changed", logging.Float("rate", s.clock.Rate()))
}

// TogglePause pauses or resumes the clock and reports whether it is now
// paused.
func (s *Session) TogglePause() bool {
	paused := !s.clock.Paused()
	s.clock.SetPaused(paused)
	return paused
}

// Await registers an in-flight ephemeris load; the batch is attached on the
// first tick after it arrives.
func (s *Session) Await(ch <-chan core.EphemerisBatch) {
	if ch == nil {
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, ch)
	s.mu.Unlock()
}

// AttachEphemeris builds the ephemeris bodies from batch, anchored at
// deployment, and attaches them. Bodies already attached are left alone.
// It returns how many bodies were newly attached.
func (s *Session) AttachEphemeris(batch core.EphemerisBatch) (int, error) {
	if batch.PrimaryErr != nil {
		s.log.Warn(s.ctx, "primary ephemeris unavailable", logging.Err(batch.PrimaryErr))
	}
	if batch.DependentErr != nil {
		s.log.Warn(s.ctx, "dependent ephemeris unavailable", logging.Err(batch.DependentErr))
	}
	bodies, stats, err := core.EphemerisBodies(batch, s.deployAt, s.tolerance)
	if s.metrics != nil && stats.Matched+stats.Dropped > 0 {
		s.metrics.RecordMerge(stats.Matched, stats.Dropped)
	}
	if err != nil {
		return 0, err
	}

	added := 0
	for _, b := range bodies {
		ok, err := s.bodies.Attach(b.BodyDefinition, b.Track)
		if err != nil {
			return added, fmt.Errorf("attach %s: %w", b.ID, err)
		}
		if ok {
			added++
			s.log.Info(s.ctx, "ephemeris body attached",
				logging.String("body", b.ID),
				logging.Int("samples", b.Track.Len()),
				logging.Float("from", b.Active.Start),
				logging.Float("to", b.Active.Stop),
				logging.Int("merged", stats.Matched),
				logging.Int("unmatched", stats.Dropped))
		}
	}
	return added, nil
}

func (s *Session) drainLocked() {
	kept := s.pending[:0]
	for _, ch := range s.pending {
		select {
		case batch, ok := <-ch:
			if !ok {
				continue
			}
			if _, err := s.AttachEphemeris(batch); err != nil {
				s.log.Error(s.ctx, "attaching ephemeris failed", logging.Err(err))
			}
		default:
			kept = append(kept, ch)
		}
	}
	s.pending = kept
}

// visibleAt reports whether id is attached and inside its active interval
// and track coverage at t.
func (s *Session) visibleAt(id string, t float64) bool {
	e, err := s.bodies.Get(id)
	if err != nil {
		return false
	}
	_, ok := core.BodyStateAt(e.Definition, e.Trajectory, t)
	return ok
}

func (s *Session) retargetLocked(t float64) {
	id, changed := s.camera.Update(t)
	if !changed {
		return
	}
	if s.metrics != nil {
		s.metrics.RecordRetarget(id)
	}
	s.log.Info(s.ctx, "camera retarget",
		logging.String("body", id),
		logging.Float("elapsed", t),
		logging.String("phase", s.PhaseAt(t)))
}
