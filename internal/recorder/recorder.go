// Package recorder persists mission frames and ground tracks to a relational
// database through gorm (SQLite or Postgres) and streams body positions to
// InfluxDB.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/peterstace/simplefeatures/geom"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/signalsfoundry/mission-trajectory-sim/internal/logging"
	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

var (
	// ErrUnknownDriver is returned by OpenDB for drivers other than sqlite
	// and postgres.
	ErrUnknownDriver = errors.New("unknown recorder driver")
	// ErrNoRun is returned when frames are recorded before StartRun.
	ErrNoRun = errors.New("recorder: no run started")
)

// Config selects the database and how often frames are kept.
type Config struct {
	Driver string  // sqlite | postgres
	DSN    string  // file path for sqlite, connection string for postgres
	Every  float64 // mission seconds between recorded frames; <= 0 keeps every frame
}

// OpenDB opens a gorm connection for driver. An empty sqlite DSN opens a
// shared in-memory database.
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres":
		db, err := gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			SkipDefaultTransaction: true,
			CreateBatchSize:        1000,
			Logger:                 logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, nil
	case "sqlite", "":
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			SkipDefaultTransaction: true,
			CreateBatchSize:        1000,
			Logger:                 logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
		}
		for _, pragma := range []string{
			"PRAGMA journal_mode = MEMORY;",
			"PRAGMA synchronous = OFF;",
			"PRAGMA temp_store = MEMORY;",
		} {
			if err := db.Exec(pragma).Error; err != nil {
				return nil, fmt.Errorf("error setting PRAGMA: %w", err)
			}
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, driver)
	}
}

// Recorder writes frames of one run at a time. It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	db    *gorm.DB
	log   logging.Logger
	every float64

	run      *Run
	last     float64
	recorded bool
}

// Open connects using cfg and migrates the schema.
func Open(cfg Config, log logging.Logger) (*Recorder, error) {
	db, err := OpenDB(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return New(db, cfg.Every, log)
}

// New wraps an open connection and migrates the recorder tables.
func New(db *gorm.DB, every float64, log logging.Logger) (*Recorder, error) {
	if db == nil {
		return nil, errors.New("recorder: nil db")
	}
	if log == nil {
		log = logging.Noop()
	}
	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("migrate recorder schema: %w", err)
	}
	return &Recorder{db: db, log: log, every: every}, nil
}

// DB exposes the underlying connection.
func (r *Recorder) DB() *gorm.DB { return r.db }

// StartRun opens a new run. Frames recorded afterwards belong to it.
func (r *Recorder) StartRun(ctx context.Context, sessionID string, epoch time.Time, bodies []model.BodyDefinition) (uint, error) {
	data, err := bodiesToJSON(bodies)
	if err != nil {
		return 0, err
	}
	run := &Run{SessionID: sessionID, Epoch: epoch.UTC(), Bodies: data}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}

	r.mu.Lock()
	r.run = run
	r.recorded = false
	r.mu.Unlock()

	r.log.Info(ctx, "recording run",
		logging.Int("run_id", int(run.ID)),
		logging.Int("bodies", len(bodies)),
	)
	return run.ID, nil
}

// AddRunBodies lists defs on the current run, skipping bodies it already
// lists.
func (r *Recorder) AddRunBodies(ctx context.Context, defs ...model.BodyDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return ErrNoRun
	}
	data, added, err := appendBodies(r.run.Bodies, defs)
	if err != nil || added == 0 {
		return err
	}
	if err := r.db.WithContext(ctx).Model(&Run{}).Where("id = ?", r.run.ID).Update("bodies", data).Error; err != nil {
		return fmt.Errorf("update bodies of run %d: %w", r.run.ID, err)
	}
	r.run.Bodies = data
	r.log.Debug(ctx, "run bodies updated", logging.Int("run_id", int(r.run.ID)), logging.Int("added", added))
	return nil
}

// RunBodies returns the ids of the bodies listed on runID, in the order
// they were added.
func (r *Recorder) RunBodies(ctx context.Context, runID uint) ([]string, error) {
	var run Run
	if err := r.db.WithContext(ctx).First(&run, runID).Error; err != nil {
		return nil, fmt.Errorf("load run %d: %w", runID, err)
	}
	infos, err := decodeBodies(run.Bodies)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(infos))
	for i, b := range infos {
		ids[i] = b.ID
	}
	return ids, nil
}

// Record stores f if at least Every mission seconds separate it from the
// last recorded frame, in either direction so scrubbing is captured too. It
// reports whether the frame was written.
func (r *Recorder) Record(ctx context.Context, f model.Frame) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run == nil {
		return false, ErrNoRun
	}
	if r.recorded && math.Abs(f.Elapsed-r.last) < r.every {
		return false, nil
	}
	rec, err := frameToRecord(r.run.ID, f)
	if err != nil {
		return false, err
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return false, fmt.Errorf("record frame at %.3f: %w", f.Elapsed, err)
	}
	r.last = f.Elapsed
	r.recorded = true
	return true, nil
}

// SaveGroundTrack stores a body's projected path for the current run.
func (r *Recorder) SaveGroundTrack(ctx context.Context, bodyID string, ls geom.LineString) error {
	r.mu.Lock()
	run := r.run
	r.mu.Unlock()
	if run == nil {
		return ErrNoRun
	}

	row := GroundTrack{
		RunID:  run.ID,
		BodyID: bodyID,
		Points: ls.Coordinates().Length(),
		WKT:    ls.AsText(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("save ground track %q: %w", bodyID, err)
	}
	return nil
}

// Frames returns every frame of a run ordered by mission time.
func (r *Recorder) Frames(ctx context.Context, runID uint) ([]model.Frame, error) {
	var run Run
	if err := r.db.WithContext(ctx).First(&run, runID).Error; err != nil {
		return nil, fmt.Errorf("load run %d: %w", runID, err)
	}
	var rows []FrameRecord
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("elapsed ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load frames of run %d: %w", runID, err)
	}

	frames := make([]model.Frame, 0, len(rows))
	for _, row := range rows {
		f, err := recordToFrame(run.Epoch, row)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// LoadGroundTrack returns the stored path of bodyID in a run.
func (r *Recorder) LoadGroundTrack(ctx context.Context, runID uint, bodyID string) (geom.LineString, error) {
	var row GroundTrack
	if err := r.db.WithContext(ctx).
		Where("run_id = ? AND body_id = ?", runID, bodyID).
		Order("id DESC").
		First(&row).Error; err != nil {
		return geom.LineString{}, fmt.Errorf("load ground track %q: %w", bodyID, err)
	}
	g, err := geom.UnmarshalWKT(row.WKT)
	if err != nil {
		return geom.LineString{}, fmt.Errorf("parse ground track %q: %w", bodyID, err)
	}
	ls, ok := g.AsLineString()
	if !ok {
		return geom.LineString{}, fmt.Errorf("ground track %q is a %s", bodyID, g.Type())
	}
	return ls, nil
}

// Close releases the database connection.
func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return sqlDB.Close()
}
