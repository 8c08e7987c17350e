package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
)

const defaultROISides = 4

// ROIEntry is one row of the ROI geometry table. Size sets both width and height
// unless they are given explicitly.
type ROIEntry struct {
	Index   int `yaml:"index"`
	OffsetX int `yaml:"offset_x"`
	OffsetY int `yaml:"offset_y"`
	Size    int `yaml:"size"`
	Width   int `yaml:"width"`
	Height  int `yaml:"height"`
	Sides   int `yaml:"sides"`
}

func (e ROIEntry) descriptor() models.ROIDescriptor {
	d := models.ROIDescriptor{
		Index:   e.Index,
		OffsetX: e.OffsetX,
		OffsetY: e.OffsetY,
		Width:   e.Width,
		Height:  e.Height,
		Sides:   e.Sides,
	}
	if d.Width == 0 {
		d.Width = e.Size
	}
	if d.Height == 0 {
		d.Height = e.Size
	}
	if d.Sides == 0 {
		d.Sides = defaultROISides
	}
	return d
}

// ROITable maps ROI indexes to frame geometry.
type ROITable struct {
	entries map[int]models.ROIDescriptor
}

// DefaultROITable is the bench layout of nine pots across a 640x480 frame.
func DefaultROITable() *ROITable {
	rows := []ROIEntry{
		{Index: 0, OffsetX: -295, OffsetY: -85, Size: 25},
		{Index: 1, OffsetX: -228, OffsetY: -36, Size: 30},
		{Index: 2, OffsetX: -170, OffsetY: -78, Size: 63},
		{Index: 3, OffsetX: -98, OffsetY: -38, Size: 58},
		{Index: 4, OffsetX: -20, OffsetY: -90, Size: 40},
		{Index: 5, OffsetX: 65, OffsetY: -56, Size: 25},
		{Index: 6, OffsetX: 125, OffsetY: -100, Size: 25},
		{Index: 7, OffsetX: 202, OffsetY: -49, Size: 50},
		{Index: 8, OffsetX: 285, OffsetY: -90, Size: 58},
	}
	t, _ := newROITable(rows)
	return t
}

func newROITable(rows []ROIEntry) (*ROITable, error) {
	t := &ROITable{entries: make(map[int]models.ROIDescriptor, len(rows))}
	for _, row := range rows {
		if row.Index < 0 {
			return nil, fmt.Errorf("roi table: negative index %d", row.Index)
		}
		if _, dup := t.entries[row.Index]; dup {
			return nil, fmt.Errorf("roi table: duplicate index %d", row.Index)
		}
		d := row.descriptor()
		if d.Width <= 0 || d.Height <= 0 {
			return nil, fmt.Errorf("roi table: index %d has no size", row.Index)
		}
		if d.Sides < 3 {
			return nil, fmt.Errorf("roi table: index %d needs at least 3 sides", row.Index)
		}
		t.entries[row.Index] = d
	}
	return t, nil
}

// LoadROITable reads a YAML geometry table. An empty path yields the default table.
func LoadROITable(path string) (*ROITable, error) {
	if path == "" {
		return DefaultROITable(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roi table %s: %w", path, err)
	}

	var doc struct {
		ROIs []ROIEntry `yaml:"rois"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse roi table %s: %w", path, err)
	}
	if len(doc.ROIs) == 0 {
		return nil, fmt.Errorf("roi table %s has no entries", path)
	}
	return newROITable(doc.ROIs)
}

// Lookup returns the geometry configured for an ROI index.
func (t *ROITable) Lookup(index int) (models.ROIDescriptor, bool) {
	d, ok := t.entries[index]
	return d, ok
}

// Len is the number of configured regions.
func (t *ROITable) Len() int {
	return len(t.entries)
}

// Resolve fills in the geometry of a descriptor that only carries an index.
// Explicit offsets are kept, including (0,0). Descriptors with their own
// geometry, and indexes missing from the table, are returned unchanged.
func (t *ROITable) Resolve(d models.ROIDescriptor) models.ROIDescriptor {
	if d.HasGeometry() {
		return d
	}
	geo, ok := t.entries[d.Index]
	if !ok {
		return d
	}
	if !d.OffsetsSet && d.OffsetX == 0 && d.OffsetY == 0 {
		d.OffsetX, d.OffsetY = geo.OffsetX, geo.OffsetY
	}
	d.Width, d.Height, d.Sides = geo.Width, geo.Height, geo.Sides
	return d
}

// PlantSeed holds the plants used to provision crops that have no roster yet.
type PlantSeed struct {
	crops map[string][]models.Plant
}

type seedCrop struct {
	ID     string         `yaml:"id"`
	Plants []models.Plant `yaml:"plants"`
}

// LoadPlantSeed reads a YAML seed file:
//
//	crops:
//	  - id: bench-1
//	    plants:
//	      - id: "1"
//	        type: basil
//	        planted_at: 2024-05-01T00:00:00Z
//	        roi: {index: 0}
//	        care:
//	          soil: loam
//	          water: {name: water, type: tap, frequency: daily, amount: 50ml}
//
// An empty path yields an empty seed.
func LoadPlantSeed(path string) (*PlantSeed, error) {
	seed := &PlantSeed{crops: make(map[string][]models.Plant)}
	if path == "" {
		return seed, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plant seed %s: %w", path, err)
	}

	var doc struct {
		Crops []seedCrop `yaml:"crops"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plant seed %s: %w", path, err)
	}

	for _, c := range doc.Crops {
		if c.ID == "" {
			return nil, fmt.Errorf("plant seed %s: crop without id", path)
		}
		seen := make(map[string]bool, len(c.Plants))
		for i, p := range c.Plants {
			if p.ID == "" {
				return nil, fmt.Errorf("plant seed %s: crop %s plant %d has no id", path, c.ID, i)
			}
			if seen[p.ID] {
				return nil, fmt.Errorf("plant seed %s: crop %s lists plant %s twice", path, c.ID, p.ID)
			}
			seen[p.ID] = true
			if p.PlantedAt.IsZero() {
				c.Plants[i].PlantedAt = time.Now().UTC().Truncate(time.Second)
			}
		}
		seed.crops[c.ID] = append(seed.crops[c.ID], c.Plants...)
	}
	return seed, nil
}

// Plants returns copies of the seed plants for a crop.
func (s *PlantSeed) Plants(cropID string) []models.Plant {
	src := s.crops[cropID]
	out := make([]models.Plant, len(src))
	for i, p := range src {
		out[i] = p.Clone()
	}
	return out
}

// CropIDs lists seeded crops in lexical order.
func (s *PlantSeed) CropIDs() []string {
	ids := make([]string, 0, len(s.crops))
	for id := range s.crops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
