package recorder

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramePoints(t *testing.T) {
	f := testFrame(3200)
	f.Bodies[0].Position.Lon = 343.5 // continuous longitude past the antimeridian

	points := FramePoints(f)
	require.Len(t, points, 2)

	carrier := points[0]
	assert.Equal(t, MeasurementBodyState, carrier.Name())
	assert.True(t, carrier.Time().Equal(f.Instant()))

	tags := map[string]string{}
	for _, tag := range carrier.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"body": "carrier", "kind": "aircraft", "phase": "boost"}, tags)

	fields := map[string]interface{}{}
	for _, field := range carrier.FieldList() {
		fields[field.Key] = field.Value
	}
	assert.InDelta(t, -16.5, fields["lon"], 1e-9)
	assert.Equal(t, false, fields["tracked"])
	assert.NotContains(t, fields, "heading")

	combinedFields := map[string]interface{}{}
	for _, field := range points[1].FieldList() {
		combinedFields[field.Key] = field.Value
	}
	assert.Equal(t, true, combinedFields["tracked"])
	assert.Equal(t, 45.0, combinedFields["heading"])
}

func TestInfluxSinkFallsBackToBackupFile(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "frames.lp.gz")
	sink, err := NewInfluxSink(context.Background(), InfluxConfig{
		URL:        "http://127.0.0.1:1",
		Org:        "mission",
		Bucket:     "frames",
		BackupPath: backup,
	}, nil)
	require.NoError(t, err)
	assert.False(t, sink.Online())

	require.NoError(t, sink.WriteFrame(testFrame(10)))
	require.NoError(t, sink.Close())
	require.Error(t, sink.WriteFrame(testFrame(20)))

	file, err := os.Open(backup)
	require.NoError(t, err)
	defer file.Close()
	zr, err := gzip.NewReader(file)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "\n\n")
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "body_state,"))
	assert.Contains(t, lines[0], "body=carrier")
	assert.Contains(t, lines[1], "body=combined-ascent")
}

func TestInfluxSinkUnreachableWithoutBackup(t *testing.T) {
	_, err := NewInfluxSink(context.Background(), InfluxConfig{URL: "http://127.0.0.1:1"}, nil)
	require.Error(t, err)
}

func TestInfluxSinkWritesToServer(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/write" {
			data, _ := io.ReadAll(r.Body)
			mu.Lock()
			bodies = append(bodies, string(data))
			mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink, err := NewInfluxSink(context.Background(), InfluxConfig{
		URL:    srv.URL,
		Token:  "token",
		Org:    "mission",
		Bucket: "frames",
	}, nil)
	require.NoError(t, err)
	require.True(t, sink.Online())

	require.NoError(t, sink.WriteFrame(testFrame(10)))
	require.NoError(t, sink.Close())

	mu.Lock()
	defer mu.Unlock()
	joined := strings.Join(bodies, "\n")
	assert.Contains(t, joined, "body=carrier")
	assert.Contains(t, joined, "body=combined-ascent")
}
