package models

import "time"

// UnknownCare is persisted for care fields the plant does not define.
const UnknownCare = "Unknown"

// PlantReading is one persisted metrics row for a plant.
// SnapshotID groups the readings of one data logger cycle and stays the same
// across write retries.
type PlantReading struct {
	SnapshotID     string    `bson:"snapshot_id,omitempty" json:"snapshot_id,omitempty"`
	PlantID        string    `bson:"plant_id" json:"plant_id"`
	LoggedAt       time.Time `bson:"logged_at" json:"logged_at"`
	ROI            int       `bson:"roi" json:"roi"`
	ROIX           int       `bson:"roi_x" json:"roi_x"`
	ROIY           int       `bson:"roi_y" json:"roi_y"`
	Greenness      float64   `bson:"greenness" json:"greenness"`
	SoilType       string    `bson:"soil_type" json:"soil_type"`
	LightType      string    `bson:"light_type" json:"light_type"`
	LightFrequency string    `bson:"light_frequency" json:"light_frequency"`
	LightAmount    string    `bson:"light_amount" json:"light_amount"`
	WaterType      string    `bson:"water_type" json:"water_type"`
	WaterFrequency string    `bson:"water_frequency" json:"water_frequency"`
	WaterAmount    string    `bson:"water_amount" json:"water_amount"`
}

// NewPlantReading flattens a plant record into a persisted row.
// LoggedAt is left zero; stores assign it at write time.
func NewPlantReading(p Plant, greennessMetric string) PlantReading {
	r := PlantReading{
		PlantID:        p.ID,
		ROI:            p.ROI.Index,
		ROIX:           p.ROI.OffsetX,
		ROIY:           p.ROI.OffsetY,
		Greenness:      p.Metric(greennessMetric),
		SoilType:       UnknownCare,
		LightType:      UnknownCare,
		LightFrequency: UnknownCare,
		LightAmount:    UnknownCare,
		WaterType:      UnknownCare,
		WaterFrequency: UnknownCare,
		WaterAmount:    UnknownCare,
	}
	if p.Care.Soil != nil {
		r.SoilType = *p.Care.Soil
	}
	if l := p.Care.Light; l != nil {
		r.LightType, r.LightFrequency, r.LightAmount = l.Type, l.Frequency, l.Amount
	}
	if w := p.Care.Water; w != nil {
		r.WaterType, r.WaterFrequency, r.WaterAmount = w.Type, w.Frequency, w.Amount
	}
	return r
}

// PlantDataPoint is a compact greenness history entry served by the API.
type PlantDataPoint struct {
	PlantID   string    `json:"PlantID"`
	LoggedAt  time.Time `json:"Log_Time"`
	Greenness float64   `json:"Greenness"`
}

// Care rebuilds the care schedule recorded in a reading. Unknown fields stay nil.
func (r PlantReading) Care() CareSchedule {
	var c CareSchedule
	if r.SoilType != "" && r.SoilType != UnknownCare {
		soil := r.SoilType
		c.Soil = &soil
	}
	if known(r.LightType, r.LightFrequency, r.LightAmount) {
		c.Light = &Nutrient{Name: "light", Type: r.LightType, Frequency: r.LightFrequency, Amount: r.LightAmount}
	}
	if known(r.WaterType, r.WaterFrequency, r.WaterAmount) {
		c.Water = &Nutrient{Name: "water", Type: r.WaterType, Frequency: r.WaterFrequency, Amount: r.WaterAmount}
	}
	return c
}

func known(values ...string) bool {
	for _, v := range values {
		if v != "" && v != UnknownCare {
			return true
		}
	}
	return false
}
