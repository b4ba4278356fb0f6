// Package pipeline wires a mission session to its clock driver, the
// ephemeris loader and the frame sinks configured for a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/mission-trajectory-sim/core"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/config"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/ephemeris"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/geo"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/logging"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/observability"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/recorder"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/sim/session"
	"github.com/signalsfoundry/mission-trajectory-sim/kb"
	"github.com/signalsfoundry/mission-trajectory-sim/model"
	"github.com/signalsfoundry/mission-trajectory-sim/timectrl"
)

// Sink consumes the frame produced on every tick.
type Sink interface {
	Name() string
	Consume(ctx context.Context, f model.Frame) error
}

type funcSink struct {
	name string
	fn   func(context.Context, model.Frame) error
}

func (s funcSink) Name() string { return s.name }

func (s funcSink) Consume(ctx context.Context, f model.Frame) error { return s.fn(ctx, f) }

// NewSink adapts fn into a named Sink.
func NewSink(name string, fn func(ctx context.Context, f model.Frame) error) Sink {
	return funcSink{name: name, fn: fn}
}

// Pipeline is one configured run of the mission.
type Pipeline struct {
	log logging.Logger
	cfg *config.Config

	Metrics    *observability.EngineCollector
	Mission    *core.Mission
	Session    *session.Session
	Controller *timectrl.TimeController
	Recorder   *recorder.Recorder // nil unless the recorder is enabled
	RunID      uint

	mu      sync.Mutex
	sinks   []Sink
	closers []func() error
}

// Build authors the mission from cfg, creates its session and clock driver
// and opens the recorder and InfluxDB sinks when they are enabled. reg
// receives the engine metrics; nil means the default registry.
func Build(ctx context.Context, cfg *config.Config, log logging.Logger, reg prometheus.Registerer) (*Pipeline, error) {
	if log == nil {
		log = logging.Noop()
	}
	collector, err := observability.NewEngineCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	mc, err := cfg.CoreMission()
	if err != nil {
		return nil, err
	}
	m, err := core.BuildAirLaunchMission(mc)
	if err != nil {
		return nil, fmt.Errorf("build mission: %w", err)
	}

	clock := NewClock(cfg.Playback, m)
	sess, err := session.New(m,
		session.WithLogger(log),
		session.WithMetrics(collector),
		session.WithClock(clock),
		session.WithMergeTolerance(cfg.Ephemeris.Tolerance),
		session.WithDeploymentMargin(cfg.Camera.DeploymentMargin),
	)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	mode := timectrl.RealTime
	if strings.EqualFold(cfg.Playback.Mode, timectrl.Accelerated.String()) {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(clock, cfg.Playback.Tick, mode)
	tc.ExitOnFinish = cfg.Playback.ExitOnFinish

	p := &Pipeline{
		log:        log,
		cfg:        cfg,
		Metrics:    collector,
		Mission:    m,
		Session:    sess,
		Controller: tc,
	}
	tc.AddListener(p.onTick)

	if cfg.Recorder.Enabled {
		if err := p.openRecorder(); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	if cfg.Influx.Enabled {
		sink, err := recorder.NewInfluxSink(ctx, cfg.InfluxSinkConfig(), log)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("open influx sink: %w", err)
		}
		p.AddSink(NewSink("influx", func(_ context.Context, f model.Frame) error {
			return sink.WriteFrame(f)
		}))
		p.closers = append(p.closers, sink.Close)
	}
	return p, nil
}

// NewClock builds the mission clock for a playback section. A zero or
// inverted stop means the end of the last phase.
func NewClock(pc config.PlaybackConfig, m *core.Mission) *timectrl.MissionClock {
	stop := pc.Stop
	if stop <= pc.Start {
		stop = m.Phases.Total()
	}
	clock := timectrl.NewMissionClock(m.Epoch, pc.Start, stop, timectrl.ParseLoopPolicy(strings.ToLower(pc.Loop)))
	if pc.Rate != 0 {
		clock.SetRate(pc.Rate)
	}
	return clock
}

func (p *Pipeline) openRecorder() error {
	rec, err := recorder.Open(p.cfg.RecorderConfig(), p.log)
	if err != nil {
		return fmt.Errorf("open recorder: %w", err)
	}
	p.closers = append(p.closers, rec.Close)

	ctx := p.Session.Context()
	defs := make([]model.BodyDefinition, 0, len(p.Mission.Bodies))
	for _, b := range p.Mission.Bodies {
		defs = append(defs, b.BodyDefinition)
	}
	runID, err := rec.StartRun(ctx, logging.SessionIDFromContext(ctx), p.Mission.Epoch, defs)
	if err != nil {
		return err
	}
	p.Recorder, p.RunID = rec, runID

	unsubscribe := p.Session.Bodies().Subscribe(func(ev kb.Event) {
		if ev.Type != kb.EventBodyAttached {
			return
		}
		if err := rec.AddRunBodies(ctx, ev.Body); err != nil {
			p.log.Warn(ctx, "failed to list attached body on run",
				logging.String("body", ev.Body.ID),
				logging.Err(err))
		}
	})
	p.closers = append(p.closers, func() error {
		unsubscribe()
		return nil
	})

	p.AddSink(NewSink("recorder", func(ctx context.Context, f model.Frame) error {
		_, err := rec.Record(ctx, f)
		return err
	}))
	return nil
}

// AddSink registers a frame sink. Sinks run on the tick goroutine in the
// order they were added.
func (p *Pipeline) AddSink(s Sink) {
	p.mu.Lock()
	p.sinks = append(p.sinks, s)
	p.mu.Unlock()
}

// LoadEphemeris starts loading the configured reports in the background.
// It reports false when no primary report is configured.
func (p *Pipeline) LoadEphemeris(ctx context.Context, client *http.Client) bool {
	ec := p.cfg.Ephemeris
	primary := ephemeris.SourceFor("primary", ec.Primary, client)
	if primary == nil {
		return false
	}
	loader := ephemeris.NewLoader(p.log,
		ephemeris.WithMetrics(p.Metrics),
		ephemeris.WithTimeout(ec.Timeout),
	)
	p.Session.Await(loader.LoadAsync(ctx, primary, ephemeris.SourceFor("dependent", ec.Dependent, client)))
	return true
}

// Run publishes the starting frame and drives the clock until ctx ends or,
// with exitOnFinish, the clock reaches its bound.
func (p *Pipeline) Run(ctx context.Context) {
	p.onTick(p.Session.Clock().Now())
	<-p.Controller.Start(ctx)
}

// Scrub jumps to t and publishes the frame there right away, so paused
// playback still shows the new instant.
func (p *Pipeline) Scrub(t float64) float64 {
	t = p.Session.Scrub(t)
	p.Controller.Fire()
	return t
}

// Toggle switches the camera between automatic and manual.
func (p *Pipeline) Toggle() model.CameraMode { return p.Session.Toggle() }

// SetRate sets the playback rate.
func (p *Pipeline) SetRate(rate float64) { p.Session.SetRate(rate) }

// TogglePause pauses or resumes playback.
func (p *Pipeline) TogglePause() bool { return p.Session.TogglePause() }

// onTick ignores the controller's elapsed value: a scrub may have moved the
// clock since it was stepped, and the session reads the clock itself.
func (p *Pipeline) onTick(float64) {
	f := p.Session.Tick()

	p.mu.Lock()
	sinks := append([]Sink(nil), p.sinks...)
	p.mu.Unlock()

	ctx := p.Session.Context()
	for _, s := range sinks {
		if err := s.Consume(ctx, f); err != nil {
			p.log.Warn(ctx, "frame sink failed",
				logging.String("sink", s.Name()),
				logging.Float("elapsed", f.Elapsed),
				logging.Err(err),
			)
		}
	}
}

// GroundTracks samples every authored body every step seconds over the part
// of its active interval its track covers. Bodies with fewer than two
// samples are left out.
func (p *Pipeline) GroundTracks(step float64) (map[string]geom.LineString, error) {
	out := make(map[string]geom.LineString, len(p.Mission.Bodies))
	for _, b := range p.Mission.Bodies {
		cov := b.Track.Coverage()
		from := math.Max(b.Active.Start, cov.Start)
		to := math.Min(b.Active.Stop, cov.Stop)
		if to <= from {
			continue
		}
		ls, err := geo.GroundTrack(b.Track, from, to, step)
		if errors.Is(err, geo.ErrTooFewPoints) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ground track %s: %w", b.ID, err)
		}
		out[b.ID] = ls
	}
	return out, nil
}

// SaveGroundTracks computes the ground tracks and stores them with the
// recorder, if one is open.
func (p *Pipeline) SaveGroundTracks(ctx context.Context, step float64) (map[string]geom.LineString, error) {
	tracks, err := p.GroundTracks(step)
	if err != nil {
		return nil, err
	}
	if p.Recorder == nil {
		return tracks, nil
	}
	for _, b := range p.Mission.Bodies {
		ls, ok := tracks[b.ID]
		if !ok {
			continue
		}
		if err := p.Recorder.SaveGroundTrack(ctx, b.ID, ls); err != nil {
			return nil, err
		}
	}
	p.log.Info(ctx, "ground tracks saved", logging.Int("bodies", len(tracks)))
	return tracks, nil
}

// Close releases the sinks in reverse order of opening.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	closers := p.closers
	p.closers = nil
	p.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
