// Package crop supervises the monitoring pipeline of one crop: its plant roster,
// frame source, image logger and data logger.
package crop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/internal/analytics"
	"github.com/mamadbah2/cropwatch/internal/archive"
	"github.com/mamadbah2/cropwatch/internal/config"
	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/repository"
	"github.com/mamadbah2/cropwatch/internal/roi"
	"github.com/mamadbah2/cropwatch/internal/scheduler"
	"github.com/mamadbah2/cropwatch/pkg/logger"
)

// FrameSource is the capture capability a supervisor drives.
type FrameSource interface {
	Start(ctx context.Context) error
	Latest() *models.Frame
	Stop() error
}

// Recorder receives data logger outcomes.
type Recorder interface {
	CycleCompleted(cropID, outcome string)
	PersistDuration(cropID string, seconds float64)
	PlantGreenness(cropID, plantID string, value float64)
}

type nopRecorder struct{}

func (nopRecorder) CycleCompleted(string, string)          {}
func (nopRecorder) PersistDuration(string, float64)        {}
func (nopRecorder) PlantGreenness(string, string, float64) {}

// Config holds the per-crop settings.
type Config struct {
	CropID string
	// Plants are only used when the crop has no plants in persistence yet.
	Plants []models.Plant

	ImagePeriod       time.Duration
	DataPeriod        time.Duration
	FramePollInterval time.Duration

	PersistAttempts   int
	PersistBackoff    time.Duration
	MaxPersistBackoff time.Duration

	// RequirePlants turns an empty new crop into ErrNoPlants instead of a warning.
	RequirePlants   bool
	GreennessMetric string
}

func (c *Config) applyDefaults() {
	if c.ImagePeriod <= 0 {
		c.ImagePeriod = 3 * time.Hour
	}
	if c.DataPeriod <= 0 {
		c.DataPeriod = time.Hour
	}
	if c.FramePollInterval <= 0 {
		c.FramePollInterval = 10 * time.Second
	}
	if c.PersistAttempts <= 0 {
		c.PersistAttempts = 3
	}
	if c.PersistBackoff <= 0 {
		c.PersistBackoff = 2 * time.Second
	}
	if c.MaxPersistBackoff <= 0 {
		c.MaxPersistBackoff = 30 * time.Second
	}
	if c.GreennessMetric == "" {
		c.GreennessMetric = analytics.GreennessName
	}
}

// Dependencies are the collaborators shared with other crops.
type Dependencies struct {
	Store     repository.PlantStore
	Source    FrameSource
	Engine    *roi.Engine
	Analytics *analytics.Registry
	Archiver  archive.Archiver
	ROITable  *config.ROITable
	Recorder  Recorder
}

// Supervisor owns one crop.
type Supervisor struct {
	cfg       Config
	store     repository.PlantStore
	source    FrameSource
	engine    *roi.Engine
	analytics *analytics.Registry
	archiver  archive.Archiver
	roiTable  *config.ROITable
	recorder  Recorder
	scheduler *scheduler.Scheduler
	logger    *zap.Logger

	outcome Outcome

	rosterMu sync.RWMutex
	plants   []models.Plant

	state           atomic.Int32
	cyclesCompleted atomic.Uint64
	persistFailures atomic.Uint64

	lifecycleMu sync.Mutex
	initialized bool
	closed      bool
	cancel      context.CancelFunc
	loggerDone  chan struct{}
}

// NewSupervisor reconciles the crop roster against persistence. Persistence and
// hydration errors are returned; nothing is started until Initialize.
func NewSupervisor(ctx context.Context, cfg Config, deps Dependencies, log *zap.Logger) (*Supervisor, error) {
	if cfg.CropID == "" {
		return nil, errors.New("crop id is required")
	}
	if deps.Store == nil || deps.Source == nil || deps.Analytics == nil {
		return nil, errors.New("store, frame source and analytics are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.applyDefaults()

	if deps.Engine == nil {
		deps.Engine = roi.NewEngine(roi.DefaultOptions())
	}
	if deps.Archiver == nil {
		deps.Archiver = archive.Noop{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}

	cropLogger := logger.Named(log, "crop").With(zap.String("crop_id", cfg.CropID))
	s := &Supervisor{
		cfg:       cfg,
		store:     deps.Store,
		source:    deps.Source,
		engine:    deps.Engine,
		analytics: deps.Analytics,
		archiver:  deps.Archiver,
		roiTable:  deps.ROITable,
		recorder:  deps.Recorder,
		scheduler: scheduler.NewScheduler(cropLogger),
		logger:    cropLogger,
	}
	s.state.Store(int32(StateIdle))

	plants, outcome, err := s.reconcile(ctx, cfg.Plants)
	if err != nil {
		return nil, err
	}
	s.plants = plants
	s.outcome = outcome
	s.cfg.Plants = nil

	s.logger.Info("crop supervisor created", zap.Stringer("roster", outcome), zap.Int("plants", len(plants)))
	return s, nil
}

// ID returns the crop id.
func (s *Supervisor) ID() string {
	return s.cfg.CropID
}

// Outcome reports how the roster was reconciled.
func (s *Supervisor) Outcome() Outcome {
	return s.outcome
}

// Plants returns a deep copy of the roster in roster order.
func (s *Supervisor) Plants() []models.Plant {
	s.rosterMu.RLock()
	defer s.rosterMu.RUnlock()

	out := make([]models.Plant, len(s.plants))
	for i, p := range s.plants {
		out[i] = p.Clone()
	}
	return out
}

func (s *Supervisor) setPlants(plants []models.Plant) {
	s.rosterMu.Lock()
	s.plants = plants
	s.rosterMu.Unlock()
}

// Initialize starts the frame source, the image logger and the data logger.
// A device failure is returned; calling Initialize again is a no-op.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.closed {
		return fmt.Errorf("crop %s: supervisor closed", s.cfg.CropID)
	}
	if s.initialized {
		return nil
	}

	if err := s.source.Start(ctx); err != nil {
		return fmt.Errorf("start frame source for crop %s: %w", s.cfg.CropID, err)
	}

	if err := s.scheduler.Every("image-logger", s.cfg.ImagePeriod, s.logImage); err != nil {
		_ = s.source.Stop()
		return err
	}
	s.scheduler.Start()

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loggerDone = make(chan struct{})
	go s.runDataLogger(loopCtx, s.loggerDone)

	s.initialized = true
	s.logger.Info("crop monitoring started",
		zap.Duration("image_period", s.cfg.ImagePeriod),
		zap.Duration("data_period", s.cfg.DataPeriod))
	return nil
}

// logImage hands the latest frame to the archive. A missing frame skips the period.
func (s *Supervisor) logImage(ctx context.Context) {
	frame := s.source.Latest()
	if frame == nil {
		s.logger.Debug("no frame available for image log")
		return
	}
	if err := s.archiver.Archive(ctx, s.cfg.CropID, frame); err != nil {
		s.logger.Error("failed to archive crop image", zap.Error(err), zap.Uint64("frame_seq", frame.Seq))
	}
}

// Image returns the latest frame with the ROI overlay, or nil when no frame is
// available or rendering fails.
func (s *Supervisor) Image() *models.Frame {
	frame := s.source.Latest()
	if frame == nil {
		return nil
	}
	out, err := s.engine.EvaluateAndVisualize(s.Plants(), frame)
	if err != nil {
		s.logger.Warn("failed to render crop overlay", zap.Error(err), zap.Uint64("frame_seq", frame.Seq))
		return nil
	}
	return out
}

// State reports the data logger state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// CyclesCompleted counts data logger cycles that went past frame acquisition.
func (s *Supervisor) CyclesCompleted() uint64 {
	return s.cyclesCompleted.Load()
}

// PersistFailures counts snapshots dropped after exhausting write attempts.
func (s *Supervisor) PersistFailures() uint64 {
	return s.persistFailures.Load()
}

// Close stops the crop: cancel the loops, stop the scheduler and the source,
// then wait for the data logger until ctx expires. Safe to call twice.
func (s *Supervisor) Close(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if !s.initialized {
		s.state.Store(int32(StateStopped))
		return nil
	}

	s.cancel()

	var errs []error
	if err := s.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.source.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop frame source: %w", err))
	}

	select {
	case <-s.loggerDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for data logger: %w", ctx.Err()))
	}

	s.state.Store(int32(StateStopped))
	s.logger.Info("crop monitoring stopped", zap.Uint64("cycles", s.cyclesCompleted.Load()))
	return errors.Join(errs...)
}
