package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("body", "carrier")).Info(context.Background(), "camera retarget",
		Float("elapsed", 3164), Duration("tick", 100*time.Millisecond), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "camera retarget" || rec["body"] != "carrier" || rec["error"] != "boom" {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["elapsed"] != 3164.0 {
		t.Fatalf("elapsed = %v", rec["elapsed"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestBadGraylogAddrFallsBackToOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf, GraylogAddr: "not a host port"})
	log.Info(context.Background(), "still logging")
	if !strings.Contains(buf.String(), "log shipping disabled") || !strings.Contains(buf.String(), "still logging") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestSessionLoggerReusesID(t *testing.T) {
	ctx, id := EnsureSessionID(context.Background())
	if id == "" {
		t.Fatalf("expected a session id")
	}
	ctx2, id2 := EnsureSessionID(ctx)
	if id2 != id || SessionIDFromContext(ctx2) != id {
		t.Fatalf("session id changed: %q -> %q", id, id2)
	}

	var buf bytes.Buffer
	_, log := WithSessionLogger(ctx, New(Config{Format: "json", Output: &buf}))
	log.Info(ctx, "tick")
	if !strings.Contains(buf.String(), `"session_id":"`+id+`"`) {
		t.Fatalf("session id missing from %q", buf.String())
	}
}

func TestContextLogger(t *testing.T) {
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected no logger")
	}
	ctx := ContextWithLogger(context.Background(), nil)
	if LoggerFromContext(ctx) == nil {
		t.Fatalf("nil logger should be stored as Noop")
	}
}
