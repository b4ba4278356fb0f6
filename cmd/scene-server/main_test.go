package main

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/mission-trajectory-sim/internal/config"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/logging"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/scenestream"
)

func TestSceneServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	v := config.New()
	v.Set("mission.references", false)
	v.Set("playback.mode", "accelerated")
	v.Set("playback.tick", "1s")
	v.Set("playback.rate", 1.0)
	v.Set("playback.start", 3000.0)
	v.Set("playback.loop", "repeat")
	v.Set("stream.metricsAddr", "")
	v.Set("logging.level", "warn")
	cfg, err := config.Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	log := logging.New(cfg.LoggerConfig())

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	watcher, err := scenestream.NewClient(conn).Watch(ctx, "carrier")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	f, err := watcher.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if f.Epoch.IsZero() || f.Phase == "" {
		t.Fatalf("frame missing header: %+v", f)
	}
	for _, b := range f.Bodies {
		if b.ID != "carrier" {
			t.Fatalf("unexpected body %s in filtered stream", b.ID)
		}
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
