package recorder

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/signalsfoundry/mission-trajectory-sim/internal/logging"
	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// MeasurementBodyState is the measurement every body position is written to.
const MeasurementBodyState = "body_state"

// InfluxConfig configures the time-series sink.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// BackupPath receives gzipped line protocol when the server cannot be
	// reached. Empty disables the fallback.
	BackupPath string
}

// InfluxSink writes one point per body per frame.
type InfluxSink struct {
	mu     sync.Mutex
	log    logging.Logger
	client influxdb2.Client
	writer influxdb2_api.WriteAPI

	backupFile *os.File
	backup     *gzip.Writer
}

// NewInfluxSink connects to cfg.URL. When the server does not answer a ping
// the sink writes to cfg.BackupPath instead, or fails if no backup is set.
func NewInfluxSink(ctx context.Context, cfg InfluxConfig, log logging.Logger) (*InfluxSink, error) {
	if log == nil {
		log = logging.Noop()
	}
	s := &InfluxSink{log: log}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)
	running, err := client.Ping(ctx)
	if err == nil && running {
		s.client = client
		s.writer = client.WriteAPI(cfg.Org, cfg.Bucket)
		go s.drainErrors(cfg.Bucket, s.writer.Errors())
		log.Info(ctx, "influxdb sink ready",
			logging.String("url", cfg.URL),
			logging.String("bucket", cfg.Bucket),
		)
		return s, nil
	}
	client.Close()

	if err == nil {
		err = errors.New("server not ready")
	}
	if cfg.BackupPath == "" {
		return nil, fmt.Errorf("influxdb %s unreachable: %w", cfg.URL, err)
	}
	file, ferr := os.OpenFile(cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if ferr != nil {
		return nil, fmt.Errorf("error creating backup file: %w", ferr)
	}
	s.backupFile = file
	s.backup = gzip.NewWriter(file)
	log.Warn(ctx, "influxdb unreachable, writing to backup file",
		logging.String("backup_path", cfg.BackupPath),
		logging.Err(err),
	)
	return s, nil
}

// Online reports whether points go to the server rather than the backup file.
func (s *InfluxSink) Online() bool { return s.writer != nil }

// WriteFrame queues the frame's body positions.
func (s *InfluxSink) WriteFrame(f model.Frame) error {
	points := FramePoints(f)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != nil {
		for _, p := range points {
			s.writer.WritePoint(p)
		}
		return nil
	}
	if s.backup == nil {
		return errors.New("influxdb sink closed")
	}
	for _, p := range points {
		line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
		if _, err := s.backup.Write([]byte(line)); err != nil {
			return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
		}
	}
	return nil
}

// Close flushes pending points and releases the client or backup file.
func (s *InfluxSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.writer.Flush()
		s.client.Close()
		s.client, s.writer = nil, nil
		return nil
	}
	if s.backup == nil {
		return nil
	}
	err := errors.Join(s.backup.Close(), s.backupFile.Close())
	s.backup, s.backupFile = nil, nil
	return err
}

func (s *InfluxSink) drainErrors(bucket string, errs <-chan error) {
	for err := range errs {
		s.log.Error(context.Background(), "error sending data to InfluxDB",
			logging.String("bucket", bucket),
			logging.Err(err),
		)
	}
}

// FramePoints converts a frame into one point per body, stamped at the
// frame's wall-clock instant.
func FramePoints(f model.Frame) []*influxdb2_write.Point {
	ts := f.Instant()
	points := make([]*influxdb2_write.Point, 0, len(f.Bodies))
	for _, b := range f.Bodies {
		tags := map[string]string{
			"body":  b.ID,
			"kind":  b.Kind.String(),
			"phase": f.Phase,
		}
		pos := b.Position.Normalized()
		fields := map[string]interface{}{
			"elapsed": f.Elapsed,
			"lon":     pos.Lon,
			"lat":     pos.Lat,
			"alt_m":   pos.Alt,
			"tracked": b.ID == f.Tracked,
		}
		if b.Orientation != nil {
			fields["heading"] = b.Orientation.HeadingDeg
			fields["pitch"] = b.Orientation.PitchDeg
		}
		points = append(points, influxdb2_write.NewPoint(MeasurementBodyState, tags, fields, ts))
	}
	return points
}
