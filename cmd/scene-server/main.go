package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/mission-trajectory-sim/internal/config"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/logging"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/observability"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/scenestream"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/sim/pipeline"
	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

func main() {
	configPath := flag.String("config", "", "Path to a yaml, json or toml config file")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the scene stream listens on (overrides stream.addr)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides stream.metricsAddr)")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.NewFromEnv().Error(ctx, "failed to load config", logging.Err(err))
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.Stream.Addr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.Stream.MetricsAddr = *metricsAddr
	}

	log := logging.New(cfg.LoggerConfig())

	lis, err := net.Listen("tcp", cfg.Stream.Addr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Stream.Addr), logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, lis); err != nil {
		log.Error(ctx, "scene server failed", logging.Err(err))
		os.Exit(1)
	}
}

// run plays the mission headless and streams its frames over gRPC on lis
// until ctx ends.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracerConfig(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	streamCollector, err := observability.NewStreamCollector(reg)
	if err != nil {
		return err
	}

	p, err := pipeline.Build(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn(context.Background(), "closing sinks", logging.Err(err))
		}
	}()

	hub := scenestream.NewHub(scenestream.WithBuffer(cfg.Stream.Buffer), scenestream.WithHubMetrics(streamCollector))
	p.AddSink(pipeline.NewSink("scene-stream", func(_ context.Context, f model.Frame) error {
		hub.Publish(f)
		return nil
	}))
	p.LoadEphemeris(ctx, http.DefaultClient)

	server := scenestream.NewGRPCServer(
		scenestream.NewService(hub, streamCollector, log),
		streamCollector.StreamServerInterceptor(),
		log,
	)
	metricsSrv := serveMetrics(cfg.Stream.MetricsAddr, streamCollector.Gatherer(), log)

	log.Info(ctx, "starting scene stream server", logging.String("addr", lis.Addr().String()))
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	played := make(chan struct{})
	go func() {
		defer close(played)
		p.Run(runCtx)
	}()

	var result error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			result = err
		}
	}

	log.Info(context.Background(), "shutting down scene stream server")
	cancelRun()
	<-played
	hub.Close()
	server.GracefulStop()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return result
}

func serveMetrics(addr string, gatherer prometheus.Gatherer, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
