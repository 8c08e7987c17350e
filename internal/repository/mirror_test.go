package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/repository"
	"github.com/mamadbah2/cropwatch/internal/repository/memory"
)

type recordingSink struct {
	batches [][]models.PlantReading
	err     error
}

func (s *recordingSink) AppendReadings(_ context.Context, readings []models.PlantReading) error {
	s.batches = append(s.batches, readings)
	return s.err
}

type failingStore struct {
	repository.Store
}

func (failingStore) InsertSnapshot(context.Context, []models.PlantReading) error {
	return errors.New("disk full")
}

func TestMirroredForwardsStampedSnapshots(t *testing.T) {
	sink := &recordingSink{}
	store := repository.NewMirrored(memory.New(), sink, nil)

	readings := []models.PlantReading{{PlantID: "1", Greenness: 0.4}, {PlantID: "2", Greenness: 0.6}}
	require.NoError(t, store.InsertSnapshot(context.Background(), readings))

	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0], 2)
	for _, r := range sink.batches[0] {
		assert.WithinDuration(t, time.Now(), r.LoggedAt, time.Minute)
	}
	assert.True(t, readings[0].LoggedAt.IsZero(), "caller slice must not be modified")
}

func TestMirroredSinkFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &recordingSink{err: errors.New("quota exceeded")}
	store := repository.NewMirrored(memory.New(), sink, zap.New(core))

	require.NoError(t, store.InsertSnapshot(context.Background(), []models.PlantReading{{PlantID: "1"}}))
	assert.Equal(t, 1, logs.FilterMessage("failed to mirror plant snapshot").Len())
}

func TestMirroredSkipsSinkWhenPrimaryFails(t *testing.T) {
	sink := &recordingSink{}
	store := repository.NewMirrored(failingStore{Store: memory.New()}, sink, nil)

	err := store.InsertSnapshot(context.Background(), []models.PlantReading{{PlantID: "1"}})
	assert.Error(t, err)
	assert.Empty(t, sink.batches)
}

func TestNewMirroredWithoutSink(t *testing.T) {
	base := memory.New()
	assert.Same(t, base, repository.NewMirrored(base, nil, nil))
}
