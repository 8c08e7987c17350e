// Package storetest holds the behavioural suite every repository.Store backend must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/repository"
)

// Factory returns an empty store; the suite closes it.
type Factory func(t *testing.T) repository.Store

// Run exercises the full store contract against fresh stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	cases := map[string]func(t *testing.T, s repository.Store){
		"crops":             testCrops,
		"provisioning":      testProvisioning,
		"plant details":     testPlantDetails,
		"snapshots":         testSnapshots,
		"add plant to crop": testAddPlantToCrop,
		"delete plant":      testDeletePlant,
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close(context.Background()) })
			require.NoError(t, s.Ping(context.Background()))
			tc(t, s)
		})
	}
}

var planted = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func testCrops(t *testing.T, s repository.Store) {
	ctx := context.Background()

	created, err := s.CreateCrop(ctx, models.Crop{ID: "bench-2", PlantedAt: planted})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateCrop(ctx, models.Crop{ID: "bench-1", PlantedAt: planted})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateCrop(ctx, models.Crop{ID: "bench-1", PlantedAt: planted.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, created)

	crops, err := s.CurrentCrops(ctx)
	require.NoError(t, err)
	require.Len(t, crops, 2)
	assert.Equal(t, "bench-1", crops[0].ID)
	assert.True(t, planted.Equal(crops[0].PlantedAt))
	assert.Equal(t, "bench-2", crops[1].ID)

	listing, err := s.CropsWithPlants(ctx)
	require.NoError(t, err)
	require.Len(t, listing, 2)
	assert.Empty(t, listing[0].Plants)
}

func testProvisioning(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.CreateCrop(ctx, models.Crop{ID: "bench-1", PlantedAt: planted})
	require.NoError(t, err)

	ids, err := s.PlantIDs(ctx, "bench-1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.InsertPlant(ctx, models.Plant{ID: id, Type: "basil", PlantedAt: planted}))
		require.NoError(t, s.AssociatePlant(ctx, "bench-1", id))
	}

	err = s.InsertPlant(ctx, models.Plant{ID: "1", Type: "mint"})
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)

	ids, err = s.PlantIDs(ctx, "bench-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2", "3"}, ids)

	other, err := s.PlantIDs(ctx, "bench-9")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testPlantDetails(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.CreateCrop(ctx, models.Crop{ID: "bench-1", PlantedAt: planted})
	require.NoError(t, err)
	require.NoError(t, s.InsertPlant(ctx, models.Plant{ID: "1", Type: "basil", Description: "front row"}))
	require.NoError(t, s.AssociatePlant(ctx, "bench-1", "1"))

	details, err := s.PlantDetails(ctx, "bench-1", "1")
	require.NoError(t, err)
	assert.Equal(t, "basil", details.Type)
	assert.True(t, planted.Equal(details.PlantedAt), "falls back to the crop planting time, got %s", details.PlantedAt)

	geo := models.ROIDescriptor{Index: 20, OffsetX: 12, OffsetY: -7, Width: 60, Height: 40, Sides: 6}
	require.NoError(t, s.InsertPlant(ctx, models.Plant{ID: "basil-a", Type: "basil", PlantedAt: planted, ROI: geo}))
	require.NoError(t, s.AssociatePlant(ctx, "bench-1", "basil-a"))

	details, err = s.PlantDetails(ctx, "bench-1", "basil-a")
	require.NoError(t, err)
	assert.Equal(t, geo, details.ROI, "geometry is stored with the plant")

	_, err = s.PlantDetails(ctx, "bench-1", "404")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.PlantDetails(ctx, "bench-2", "1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testSnapshots(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.CreateCrop(ctx, models.Crop{ID: "bench-1", PlantedAt: planted})
	require.NoError(t, err)
	for _, id := range []string{"1", "2"} {
		require.NoError(t, s.InsertPlant(ctx, models.Plant{ID: id, Type: "basil"}))
		require.NoError(t, s.AssociatePlant(ctx, "bench-1", id))
	}

	soil := "loam"
	first := []models.PlantReading{
		models.NewPlantReading(models.Plant{ID: "1", ROI: models.ROIDescriptor{Index: 0, OffsetX: -295, OffsetY: -85}, Metrics: map[string]float64{"g": 0.25}, Care: models.CareSchedule{Soil: &soil}}, "g"),
		models.NewPlantReading(models.Plant{ID: "2", ROI: models.ROIDescriptor{Index: 1}, Metrics: map[string]float64{"g": 0.5}}, "g"),
	}
	require.NoError(t, s.InsertSnapshot(ctx, first))

	second := []models.PlantReading{
		models.NewPlantReading(models.Plant{ID: "1", ROI: models.ROIDescriptor{Index: 4}, Metrics: map[string]float64{"g": 0.75}}, "g"),
	}
	require.NoError(t, s.InsertSnapshot(ctx, second))
	require.NoError(t, s.InsertSnapshot(ctx, nil))

	history, err := s.PlantHistory(ctx, "1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 0, history[0].ROI)
	assert.Equal(t, -295, history[0].ROIX)
	assert.Equal(t, -85, history[0].ROIY)
	assert.Equal(t, 0.25, history[0].Greenness)
	assert.Equal(t, "loam", history[0].SoilType)
	assert.Equal(t, models.UnknownCare, history[0].WaterAmount)
	assert.False(t, history[0].LoggedAt.IsZero())
	assert.Equal(t, 4, history[1].ROI, "latest reading comes last")

	points, err := s.PlantData(ctx)
	require.NoError(t, err)
	require.Len(t, points, 3)
	greenness := make([]float64, 0, len(points))
	for _, p := range points {
		greenness = append(greenness, p.Greenness)
		assert.False(t, p.LoggedAt.IsZero())
	}
	assert.ElementsMatch(t, []float64{0.25, 0.5, 0.75}, greenness)

	none, err := s.PlantHistory(ctx, "404")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testAddPlantToCrop(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.CreateCrop(ctx, models.Crop{ID: "bench-1", PlantedAt: planted})
	require.NoError(t, err)

	added, err := s.AddPlantToCrop(ctx, "bench-1", models.Plant{ID: "7", Type: "mint", Description: "corner pot"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddPlantToCrop(ctx, "bench-1", models.Plant{ID: "7", Type: "thyme"})
	require.NoError(t, err)
	assert.False(t, added)

	listing, err := s.CropsWithPlants(ctx)
	require.NoError(t, err)
	require.Len(t, listing, 1)
	require.Len(t, listing[0].Plants, 1)
	p := listing[0].Plants[0]
	assert.Equal(t, "7", p.ID)
	assert.Equal(t, "mint", p.Type)
	assert.Equal(t, "corner pot", p.Description)
	assert.True(t, planted.Equal(p.PlantedTime))
}

func testDeletePlant(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.CreateCrop(ctx, models.Crop{ID: "bench-1", PlantedAt: planted})
	require.NoError(t, err)
	_, err = s.AddPlantToCrop(ctx, "bench-1", models.Plant{ID: "7", Type: "mint"})
	require.NoError(t, err)

	require.NoError(t, s.DeletePlantFromCrop(ctx, "bench-1", "7"))

	ids, err := s.PlantIDs(ctx, "bench-1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	err = s.DeletePlantFromCrop(ctx, "bench-1", "7")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	added, err := s.AddPlantToCrop(ctx, "bench-1", models.Plant{ID: "7", Type: "mint"})
	require.NoError(t, err)
	assert.True(t, added, "deleted plants can be re-added")
}
