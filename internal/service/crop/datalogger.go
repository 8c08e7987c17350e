package crop

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/metrics"
)

// State is the data logger position in its cycle.
type State int32

const (
	StateIdle State = iota
	StateAwaitingFrame
	StateEvaluating
	StatePersisting
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFrame:
		return "awaiting_frame"
	case StateEvaluating:
		return "evaluating"
	case StatePersisting:
		return "persisting"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
}

// runDataLogger loops AwaitingFrame -> Evaluating -> Persisting -> Sleeping until ctx ends.
func (s *Supervisor) runDataLogger(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		frame := s.awaitFrame(ctx)
		if frame == nil {
			return
		}

		s.runCycle(ctx, frame)
		s.cyclesCompleted.Add(1)

		s.setState(StateSleeping)
		if !wait(ctx, s.cfg.DataPeriod) {
			return
		}
	}
}

// awaitFrame polls the source until a frame exists. Returns nil only when ctx ends.
func (s *Supervisor) awaitFrame(ctx context.Context) *models.Frame {
	s.setState(StateAwaitingFrame)
	for {
		if frame := s.source.Latest(); frame != nil {
			return frame
		}
		s.logger.Debug("waiting for first frame", zap.Duration("poll_interval", s.cfg.FramePollInterval))
		if !wait(ctx, s.cfg.FramePollInterval) {
			return nil
		}
	}
}

func (s *Supervisor) runCycle(ctx context.Context, frame *models.Frame) {
	s.setState(StateEvaluating)

	plants := s.Plants()
	if err := s.evaluate(ctx, plants, frame); err != nil {
		s.logger.Error("failed to evaluate plant metrics", zap.Error(err), zap.Uint64("frame_seq", frame.Seq))
		s.recorder.CycleCompleted(s.cfg.CropID, metrics.OutcomeFailed)
		return
	}
	s.setPlants(plants)

	s.setState(StatePersisting)
	if len(plants) == 0 {
		s.logger.Debug("empty roster, nothing to persist")
		return
	}

	snapshotID := uuid.NewString()
	readings := make([]models.PlantReading, len(plants))
	for i, p := range plants {
		readings[i] = models.NewPlantReading(p, s.cfg.GreennessMetric)
		readings[i].SnapshotID = snapshotID
	}

	start := time.Now()
	if err := s.persist(ctx, readings); err != nil {
		s.persistFailures.Add(1)
		s.recorder.CycleCompleted(s.cfg.CropID, metrics.OutcomeDropped)
		s.logger.Error("dropping plant snapshot", zap.Error(err), zap.Int("plants", len(readings)))
		return
	}
	s.recorder.PersistDuration(s.cfg.CropID, time.Since(start).Seconds())
	s.recorder.CycleCompleted(s.cfg.CropID, metrics.OutcomePersisted)
	s.logger.Info("plant snapshot persisted", zap.Int("plants", len(readings)), zap.Uint64("frame_seq", frame.Seq))
}

// evaluate attaches the greenness of ROI i to plant i for every plant with a
// valid ROI. Plants whose polygon is empty keep their previous value.
func (s *Supervisor) evaluate(ctx context.Context, plants []models.Plant, frame *models.Frame) error {
	polygons := s.engine.Evaluate(plants, frame)
	results, err := s.analytics.Run(ctx, frame, polygons)
	if err != nil {
		return err
	}

	greenness := results[s.cfg.GreennessMetric]
	for i := range plants {
		if !plants[i].ROI.Valid() || i >= len(greenness) {
			continue
		}
		if len(polygons[i]) < 3 {
			s.logger.Warn("plant roi has no geometry, skipping metric",
				zap.String("plant_id", plants[i].ID), zap.Int("roi", plants[i].ROI.Index))
			continue
		}
		plants[i].SetMetric(s.cfg.GreennessMetric, greenness[i])
		s.recorder.PlantGreenness(s.cfg.CropID, plants[i].ID, greenness[i])
	}
	return nil
}

// persist writes the snapshot, retrying with exponential backoff up to PersistAttempts.
func (s *Supervisor) persist(ctx context.Context, readings []models.PlantReading) error {
	var err error
	for attempt := 1; attempt <= s.cfg.PersistAttempts; attempt++ {
		if err = s.store.InsertSnapshot(ctx, readings); err == nil {
			return nil
		}
		if attempt == s.cfg.PersistAttempts {
			break
		}

		delay := persistBackoff(attempt, s.cfg.PersistBackoff, s.cfg.MaxPersistBackoff)
		s.logger.Warn("failed to persist plant snapshot, retrying",
			zap.Error(err), zap.Int("attempt", attempt), zap.Duration("delay", delay))
		if !wait(ctx, delay) {
			return &PersistenceError{CropID: s.cfg.CropID, Attempts: attempt, Err: ctx.Err()}
		}
	}
	return &PersistenceError{CropID: s.cfg.CropID, Attempts: s.cfg.PersistAttempts, Err: err}
}

// persistBackoff is base * 2^(attempt-1), capped at limit.
func persistBackoff(attempt int, base, limit time.Duration) time.Duration {
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > limit || delay <= 0 {
		delay = limit
	}
	return delay
}

// wait sleeps for d and reports false when ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
