package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/signalsfoundry/mission-trajectory-sim/internal/config"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/hud"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/logging"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/observability"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/scenestream"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/sim/pipeline"
	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// options are the command-line overrides applied on top of the config file.
type options struct {
	ConfigPath   string
	Headless     bool
	Primary      string
	Dependent    string
	Rate         float64
	Accelerated  bool
	GroundTracks string
	TrackStep    float64
	MetricsAddr  string
}

func main() {
	var opts options
	flag.StringVar(&opts.ConfigPath, "config", "", "Path to a yaml, json or toml config file")
	flag.BoolVar(&opts.Headless, "headless", false, "Log frames instead of drawing the terminal HUD")
	flag.StringVar(&opts.Primary, "primary", "", "Primary ephemeris report, file path or URL (overrides ephemeris.primary)")
	flag.StringVar(&opts.Dependent, "dependent", "", "Dependent ephemeris report, file path or URL (overrides ephemeris.dependent)")
	flag.Float64Var(&opts.Rate, "rate", 0, "Playback rate multiplier (overrides playback.rate)")
	flag.BoolVar(&opts.Accelerated, "accelerated", false, "Step the clock as fast as possible")
	flag.StringVar(&opts.GroundTracks, "ground-tracks", "", "Write every body's ground track as WKT to this file on exit")
	flag.Float64Var(&opts.TrackStep, "track-step", 60, "Ground track sampling step in mission seconds")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics; empty disables it")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		logging.NewFromEnv().Error(ctx, "failed to load config", logging.Err(err))
		os.Exit(1)
	}
	opts.apply(cfg)

	log := logging.New(cfg.LoggerConfig())

	var screen tcell.Screen
	if !opts.Headless {
		screen, err = tcell.NewScreen()
		if err == nil {
			err = screen.Init()
		}
		if err != nil {
			log.Error(ctx, "failed to open terminal", logging.Err(err))
			os.Exit(1)
		}
		defer screen.Fini()
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, opts, cfg, log, screen); err != nil {
		if screen != nil {
			screen.Fini()
		}
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

func (o options) apply(cfg *config.Config) {
	if o.Primary != "" {
		cfg.Ephemeris.Primary = o.Primary
	}
	if o.Dependent != "" {
		cfg.Ephemeris.Dependent = o.Dependent
	}
	if o.Rate != 0 {
		cfg.Playback.Rate = o.Rate
	}
	if o.Accelerated {
		cfg.Playback.Mode = "accelerated"
	}
}

// run plays the mission on screen, or headless when screen is nil, until
// the user quits, ctx ends or a stopping clock reaches its bound.
func run(ctx context.Context, opts options, cfg *config.Config, log logging.Logger, screen tcell.Screen) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracerConfig(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	p, err := pipeline.Build(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn(context.Background(), "closing sinks", logging.Err(err))
		}
	}()

	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", p.Metrics.Handler())
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn(context.Background(), "metrics server exited", logging.Err(err))
			}
		}()
		defer srv.Close()
	}

	sessCtx := p.Session.Context()
	log.Info(sessCtx, "mission ready",
		logging.String("session_id", logging.SessionIDFromContext(sessCtx)),
		logging.String("epoch", p.Mission.Epoch.Format(time.RFC3339)),
		logging.Int("bodies", len(p.Mission.Bodies)),
		logging.Float("duration_s", p.Mission.Phases.Total()),
	)
	if p.LoadEphemeris(ctx, http.DefaultClient) {
		log.Info(sessCtx, "loading ephemeris in the background", logging.String("primary", cfg.Ephemeris.Primary))
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	if screen == nil {
		p.AddSink(headlessSink(log))
		p.Run(runCtx)
	} else {
		hub := scenestream.NewHub(scenestream.WithBuffer(cfg.Stream.Buffer))
		p.AddSink(pipeline.NewSink("hud", func(_ context.Context, f model.Frame) error {
			hub.Publish(f)
			return nil
		}))
		frames, unsubscribe := hub.Subscribe()

		played := make(chan struct{})
		go func() {
			defer close(played)
			p.Run(runCtx)
		}()

		err := hud.New(screen, p, p.Session.Clock()).Run(runCtx, frames)
		cancelRun()
		<-played
		unsubscribe()
		hub.Close()
		if err != nil && ctx.Err() == nil {
			return err
		}
	}
	log.Info(sessCtx, "playback stopped", logging.Float("elapsed", p.Session.Clock().Now()))

	if opts.GroundTracks != "" {
		return writeGroundTracks(context.Background(), p, opts.GroundTracks, opts.TrackStep, log)
	}
	return nil
}

// headlessSink logs every phase or camera change at info and every frame at
// debug.
func headlessSink(log logging.Logger) pipeline.Sink {
	var phase, tracked string
	return pipeline.NewSink("log", func(ctx context.Context, f model.Frame) error {
		fields := []logging.Field{
			logging.Float("elapsed", f.Elapsed),
			logging.String("phase", f.Phase),
			logging.String("tracked", f.Tracked),
			logging.Int("bodies", len(f.Bodies)),
		}
		if f.Phase != phase || f.Tracked != tracked {
			phase, tracked = f.Phase, f.Tracked
			log.Info(ctx, "mission state", fields...)
			return nil
		}
		log.Debug(ctx, "frame", fields...)
		return nil
	})
}

// writeGroundTracks writes one "id<TAB>WKT" line per body, in mission body
// order.
func writeGroundTracks(ctx context.Context, p *pipeline.Pipeline, path string, step float64, log logging.Logger) error {
	tracks, err := p.SaveGroundTracks(ctx, step)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, b := range p.Mission.Bodies {
		ls, ok := tracks[b.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", b.ID, ls.AsText())
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info(ctx, "ground tracks written", logging.String("path", path), logging.Int("bodies", len(tracks)))
	return nil
}
