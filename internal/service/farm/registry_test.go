package farm

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/cropwatch/internal/analytics"
	"github.com/mamadbah2/cropwatch/internal/camera"
	"github.com/mamadbah2/cropwatch/internal/config"
	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/repository/memory"
	"github.com/mamadbah2/cropwatch/internal/service/crop"
)

func testOptions(t *testing.T, opened *[]string) Options {
	t.Helper()
	reg, err := analytics.NewRegistry(analytics.NewGreenness(analytics.DefaultGreenBand()))
	require.NoError(t, err)

	return Options{
		Template: crop.Config{
			ImagePeriod:       time.Hour,
			DataPeriod:        time.Hour,
			FramePollInterval: 5 * time.Millisecond,
		},
		Dependencies: crop.Dependencies{
			Analytics: reg,
			ROITable:  config.DefaultROITable(),
		},
		NewSource: func(cropID string) (crop.FrameSource, error) {
			*opened = append(*opened, cropID)
			dev := camera.NewPatternDevice(64, 48, color.RGBA{G: 160, A: 255})
			dev.Interval = time.Millisecond
			return camera.NewSource(dev, camera.Options{Name: cropID, RetryDelay: time.Millisecond}, nil), nil
		},
	}
}

func closeRegistry(t *testing.T, r *Registry) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
}

func TestStartupStartsCurrentCrops(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, id := range []string{"bench-2", "bench-1"} {
		_, err := store.CreateCrop(ctx, models.Crop{ID: id, PlantedAt: time.Now()})
		require.NoError(t, err)
	}
	require.NoError(t, store.InsertPlant(ctx, models.Plant{ID: "1", Type: "basil", PlantedAt: time.Now()}))
	require.NoError(t, store.AssociatePlant(ctx, "bench-1", "1"))

	var opened []string
	r := NewRegistry(store, testOptions(t, &opened), nil)
	require.NoError(t, r.Startup(ctx))
	defer closeRegistry(t, r)

	assert.Equal(t, []string{"bench-1", "bench-2"}, r.IDs())
	assert.Equal(t, []string{"bench-1", "bench-2"}, opened)

	sup, err := r.Get("bench-1")
	require.NoError(t, err)
	assert.Equal(t, crop.RosterHydrated, sup.Outcome())

	sup, err = r.Get("bench-2")
	require.NoError(t, err)
	assert.Equal(t, crop.RosterEmpty, sup.Outcome())

	_, err = r.Get("bench-9")
	assert.ErrorIs(t, err, ErrCropNotFound)
}

func TestStartupProvisionsSeededCrops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
crops:
  - id: bench-1
    plants:
      - id: "1"
        type: basil
        roi:
          index: 0
      - id: "2"
        type: mint
        roi:
          index: 1
`), 0o600))
	seed, err := config.LoadPlantSeed(path)
	require.NoError(t, err)

	store := memory.New()
	var opened []string
	opts := testOptions(t, &opened)
	opts.Seed = seed

	r := NewRegistry(store, opts, nil)
	require.NoError(t, r.Startup(context.Background()))
	defer closeRegistry(t, r)

	sup, err := r.Get("bench-1")
	require.NoError(t, err)
	assert.Equal(t, crop.RosterProvisioned, sup.Outcome())

	crops, err := store.CurrentCrops(context.Background())
	require.NoError(t, err)
	require.Len(t, crops, 1)
	assert.Equal(t, []string{"1", "2"}, crops[0].PlantIDs)

	require.Eventually(t, func() bool { return len(store.Readings()) == 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestAddRejectsDuplicates(t *testing.T) {
	var opened []string
	r := NewRegistry(memory.New(), testOptions(t, &opened), nil)
	defer closeRegistry(t, r)

	sup, err := r.Add(context.Background(), "bench-3", []models.Plant{{ID: "7", Type: "sage", PlantedAt: time.Now()}})
	require.NoError(t, err)
	assert.Equal(t, "bench-3", sup.ID())

	_, err = r.Add(context.Background(), "bench-3", nil)
	assert.ErrorIs(t, err, ErrCropExists)
	assert.Len(t, opened, 1)
}

func TestStartupReportsFailedCrops(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, id := range []string{"bench-1", "bench-2"} {
		_, err := store.CreateCrop(ctx, models.Crop{ID: id, PlantedAt: time.Now()})
		require.NoError(t, err)
	}

	var opened []string
	opts := testOptions(t, &opened)
	working := opts.NewSource
	opts.NewSource = func(cropID string) (crop.FrameSource, error) {
		if cropID == "bench-2" {
			return nil, errors.New("camera unplugged")
		}
		return working(cropID)
	}

	r := NewRegistry(store, opts, nil)
	err := r.Startup(ctx)
	defer closeRegistry(t, r)

	assert.ErrorContains(t, err, "camera unplugged")
	assert.Equal(t, []string{"bench-1"}, r.IDs())
}

func TestCloseStopsEverySupervisor(t *testing.T) {
	var opened []string
	r := NewRegistry(memory.New(), testOptions(t, &opened), nil)

	sup, err := r.Add(context.Background(), "bench-1", nil)
	require.NoError(t, err)

	closeRegistry(t, r)
	assert.Empty(t, r.IDs())
	assert.Equal(t, crop.StateStopped, sup.State())
}

func TestLookupsDoNotWaitForCropStartup(t *testing.T) {
	var opened []string
	opts := testOptions(t, &opened)
	entered := make(chan struct{})
	release := make(chan struct{})
	open := opts.NewSource
	opts.NewSource = func(cropID string) (crop.FrameSource, error) {
		close(entered)
		<-release
		return open(cropID)
	}
	r := NewRegistry(memory.New(), opts, nil)
	defer closeRegistry(t, r)

	type result struct {
		sup *crop.Supervisor
		err error
	}
	done := make(chan result, 1)
	go func() {
		sup, err := r.Add(context.Background(), "bench-1", nil)
		done <- result{sup, err}
	}()
	<-entered

	looked := make(chan error, 1)
	go func() {
		_, err := r.Get("bench-1")
		looked <- err
	}()
	select {
	case err := <-looked:
		assert.ErrorIs(t, err, ErrCropNotFound)
	case <-time.After(time.Second):
		t.Fatal("Get blocked while a crop was starting")
	}
	assert.Empty(t, r.IDs())

	_, err := r.Add(context.Background(), "bench-1", nil)
	assert.ErrorIs(t, err, ErrCropExists, "a starting crop counts as monitored")

	close(release)
	res := <-done
	require.NoError(t, res.err)
	got, err := r.Get("bench-1")
	require.NoError(t, err)
	assert.Same(t, res.sup, got)
	assert.Equal(t, []string{"bench-1"}, opened)
}

func TestAddAfterCloseFails(t *testing.T) {
	var opened []string
	r := NewRegistry(memory.New(), testOptions(t, &opened), nil)
	closeRegistry(t, r)

	_, err := r.Add(context.Background(), "bench-1", nil)
	assert.ErrorIs(t, err, errRegistryClosed)
	assert.Empty(t, opened)
}
