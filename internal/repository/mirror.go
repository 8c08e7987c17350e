package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
)

// SnapshotSink receives a copy of every persisted snapshot.
type SnapshotSink interface {
	AppendReadings(ctx context.Context, readings []models.PlantReading) error
}

// Mirrored forwards snapshots to a secondary sink after the primary store
// accepted them. Sink failures are logged and never fail the write.
type Mirrored struct {
	Store
	sink   SnapshotSink
	logger *zap.Logger
	now    func() time.Time
}

// NewMirrored wraps a store. A nil sink returns the store unchanged.
func NewMirrored(store Store, sink SnapshotSink, logger *zap.Logger) Store {
	if sink == nil {
		return store
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirrored{Store: store, sink: sink, logger: logger, now: time.Now}
}

func (m *Mirrored) InsertSnapshot(ctx context.Context, readings []models.PlantReading) error {
	if err := m.Store.InsertSnapshot(ctx, readings); err != nil {
		return err
	}
	if len(readings) == 0 {
		return nil
	}

	stamped := make([]models.PlantReading, len(readings))
	copy(stamped, readings)
	ts := m.now().UTC()
	for i := range stamped {
		if stamped[i].LoggedAt.IsZero() {
			stamped[i].LoggedAt = ts
		}
	}

	if err := m.sink.AppendReadings(ctx, stamped); err != nil {
		m.logger.Warn("failed to mirror plant snapshot", zap.Int("readings", len(stamped)), zap.Error(err))
	}
	return nil
}
