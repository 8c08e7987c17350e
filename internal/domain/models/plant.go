package models

import (
	"encoding/json"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ROIDescriptor configures where a plant sits in the camera frame.
// Offsets are relative to the frame centre; Width/Height bound the polygon.
// OffsetsSet marks offsets given explicitly, so (0,0) means the frame centre
// rather than "take the offsets from the ROI table". Decoding sets it whenever
// offset_x or offset_y is present.
type ROIDescriptor struct {
	Index      int  `json:"index" yaml:"index" bson:"index"`
	OffsetX    int  `json:"offset_x" yaml:"offset_x" bson:"offset_x"`
	OffsetY    int  `json:"offset_y" yaml:"offset_y" bson:"offset_y"`
	Width      int  `json:"width" yaml:"width" bson:"width"`
	Height     int  `json:"height" yaml:"height" bson:"height"`
	Sides      int  `json:"sides" yaml:"sides" bson:"sides"`
	OffsetsSet bool `json:"offsets_set,omitempty" yaml:"offsets_set,omitempty" bson:"offsets_set,omitempty"`
}

type roiFields ROIDescriptor

func (d *ROIDescriptor) UnmarshalJSON(data []byte) error {
	var fields roiFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	_, hasX := keys["offset_x"]
	_, hasY := keys["offset_y"]
	*d = ROIDescriptor(fields)
	d.OffsetsSet = d.OffsetsSet || hasX || hasY
	return nil
}

func (d *ROIDescriptor) UnmarshalYAML(node *yaml.Node) error {
	var fields roiFields
	if err := node.Decode(&fields); err != nil {
		return err
	}
	*d = ROIDescriptor(fields)
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if key := node.Content[i].Value; key == "offset_x" || key == "offset_y" {
				d.OffsetsSet = true
			}
		}
	}
	return nil
}

// Valid reports whether the plant may receive metrics (non-negative ROI index).
func (d ROIDescriptor) Valid() bool {
	return d.Index >= 0
}

// HasGeometry reports whether a bounding size and side count have been set.
func (d ROIDescriptor) HasGeometry() bool {
	return d.Width > 0 && d.Height > 0 && d.Sides > 0
}

// Nutrient captures one entry of a plant's care schedule.
type Nutrient struct {
	Name      string `json:"name" yaml:"name" bson:"name"`
	Type      string `json:"type" yaml:"type" bson:"type"`
	Frequency string `json:"frequency" yaml:"frequency" bson:"frequency"`
	Amount    string `json:"amount" yaml:"amount" bson:"amount"`
}

// CareSchedule holds the optional care fields persisted with every reading.
// Nil members are unknown.
type CareSchedule struct {
	Soil  *string   `json:"soil,omitempty" yaml:"soil,omitempty" bson:"soil,omitempty"`
	Light *Nutrient `json:"light,omitempty" yaml:"light,omitempty" bson:"light,omitempty"`
	Water *Nutrient `json:"water,omitempty" yaml:"water,omitempty" bson:"water,omitempty"`
}

// Nutrients returns the schedule as an ordered list (light, water).
func (c CareSchedule) Nutrients() []Nutrient {
	var out []Nutrient
	if c.Light != nil {
		out = append(out, *c.Light)
	}
	if c.Water != nil {
		out = append(out, *c.Water)
	}
	return out
}

func (c CareSchedule) clone() CareSchedule {
	out := CareSchedule{}
	if c.Soil != nil {
		soil := *c.Soil
		out.Soil = &soil
	}
	if c.Light != nil {
		light := *c.Light
		out.Light = &light
	}
	if c.Water != nil {
		water := *c.Water
		out.Water = &water
	}
	return out
}

// Plant is the in-memory plant record: configuration merged with the latest metrics.
type Plant struct {
	ID          string             `json:"id" yaml:"id"`
	Type        string             `json:"type" yaml:"type"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	PlantedAt   time.Time          `json:"planted_at" yaml:"planted_at"`
	ROI         ROIDescriptor      `json:"roi" yaml:"roi"`
	Metrics     map[string]float64 `json:"metrics,omitempty" yaml:"-"`
	Care        CareSchedule       `json:"care" yaml:"care"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (p Plant) Clone() Plant {
	out := p
	out.Care = p.Care.clone()
	if p.Metrics != nil {
		out.Metrics = make(map[string]float64, len(p.Metrics))
		for k, v := range p.Metrics {
			out.Metrics[k] = v
		}
	}
	return out
}

// SetMetric records the latest value of a named metric.
func (p *Plant) SetMetric(name string, value float64) {
	if p.Metrics == nil {
		p.Metrics = make(map[string]float64)
	}
	p.Metrics[name] = value
}

// Metric returns a metric value or 0 when it was never computed.
func (p Plant) Metric(name string) float64 {
	return p.Metrics[name]
}

// DefaultROIIndex derives an ROI index from a numeric plant id ("1" -> 0).
// The second return value is false when the id is not numeric.
func DefaultROIIndex(plantID string) (int, bool) {
	n, err := strconv.Atoi(plantID)
	if err != nil {
		return 0, false
	}
	return n - 1, true
}
