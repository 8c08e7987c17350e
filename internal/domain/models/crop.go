package models

import "time"

// Crop is a named planting batch.
type Crop struct {
	ID        string    `json:"id" bson:"_id"`
	PlantedAt time.Time `json:"planted_at" bson:"planted_at"`
	PlantIDs  []string  `json:"plant_ids,omitempty" bson:"-"`
}

// CropPlant is the API view of a plant inside a crop listing.
type CropPlant struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	PlantedTime time.Time `json:"plantedTime"`
}

// CropWithPlants groups a crop with its plants.
type CropWithPlants struct {
	ID     string      `json:"id"`
	Plants []CropPlant `json:"plants"`
}

// PlantDetails are the basic attributes stored for a plant within a crop.
// ROI is the geometry stored when the plant was provisioned; it has no
// geometry for plants stored without one.
type PlantDetails struct {
	Type      string
	PlantedAt time.Time
	ROI       ROIDescriptor
}
