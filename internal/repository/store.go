// Package repository defines the persistence contract shared by the plant stores.
package repository

import (
	"context"
	"errors"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when inserting a record whose key is taken.
	ErrAlreadyExists = errors.New("record already exists")
)

// PlantStore is the persistence surface used by a crop supervisor.
type PlantStore interface {
	// PlantIDs lists the plants associated with a crop.
	PlantIDs(ctx context.Context, cropID string) ([]string, error)
	// PlantHistory returns every reading of a plant, oldest first.
	PlantHistory(ctx context.Context, plantID string) ([]models.PlantReading, error)
	// PlantDetails returns ErrNotFound when the plant is not part of the crop.
	PlantDetails(ctx context.Context, cropID, plantID string) (models.PlantDetails, error)
	InsertPlant(ctx context.Context, plant models.Plant) error
	AssociatePlant(ctx context.Context, cropID, plantID string) error
	// InsertSnapshot persists one reading per plant as a single batch. Stores stamp
	// LoggedAt with the write time.
	InsertSnapshot(ctx context.Context, readings []models.PlantReading) error
}

// FarmStore backs the crop registry and the HTTP API.
type FarmStore interface {
	CurrentCrops(ctx context.Context) ([]models.Crop, error)
	// CreateCrop reports false when the crop already exists.
	CreateCrop(ctx context.Context, crop models.Crop) (bool, error)
	CropsWithPlants(ctx context.Context) ([]models.CropWithPlants, error)
	// AddPlantToCrop reports false when a plant with the same id already exists.
	AddPlantToCrop(ctx context.Context, cropID string, plant models.Plant) (bool, error)
	DeletePlantFromCrop(ctx context.Context, cropID, plantID string) error
	PlantData(ctx context.Context) ([]models.PlantDataPoint, error)
}

// Store is implemented by every backend.
type Store interface {
	PlantStore
	FarmStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
