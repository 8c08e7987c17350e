// Package memory is a process-local plant store used for development runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type plantRow struct {
	Type        string
	Description string
	PlantedAt   time.Time
	ROI         models.ROIDescriptor
}

// Store keeps every table in maps guarded by a single mutex.
type Store struct {
	mu       sync.RWMutex
	crops    map[string]models.Crop
	plants   map[string]plantRow
	members  map[string][]string
	readings []models.PlantReading

	now func() time.Time
}

func New() *Store {
	return &Store{
		crops:   make(map[string]models.Crop),
		plants:  make(map[string]plantRow),
		members: make(map[string][]string),
		now:     time.Now,
	}
}

// WithClock replaces the clock used to stamp readings.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

// Readings returns every persisted reading in insertion order.
func (s *Store) Readings() []models.PlantReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.PlantReading(nil), s.readings...)
}

func (s *Store) PlantIDs(_ context.Context, cropID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.members[cropID]...), nil
}

func (s *Store) PlantHistory(_ context.Context, plantID string) ([]models.PlantReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.PlantReading
	for _, r := range s.readings {
		if r.PlantID == plantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) PlantDetails(_ context.Context, cropID, plantID string) (models.PlantDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !contains(s.members[cropID], plantID) {
		return models.PlantDetails{}, fmt.Errorf("plant %s in crop %s: %w", plantID, cropID, repository.ErrNotFound)
	}
	p, ok := s.plants[plantID]
	if !ok {
		return models.PlantDetails{}, fmt.Errorf("plant %s: %w", plantID, repository.ErrNotFound)
	}
	planted := p.PlantedAt
	if planted.IsZero() {
		planted = s.crops[cropID].PlantedAt
	}
	return models.PlantDetails{Type: p.Type, PlantedAt: planted, ROI: p.ROI}, nil
}

func (s *Store) InsertPlant(_ context.Context, plant models.Plant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertPlantLocked(plant)
}

func (s *Store) insertPlantLocked(plant models.Plant) error {
	if _, exists := s.plants[plant.ID]; exists {
		return fmt.Errorf("plant %s: %w", plant.ID, repository.ErrAlreadyExists)
	}
	s.plants[plant.ID] = plantRow{Type: plant.Type, Description: plant.Description, PlantedAt: plant.PlantedAt, ROI: plant.ROI}
	return nil
}

func (s *Store) AssociatePlant(_ context.Context, cropID, plantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.associateLocked(cropID, plantID)
}

func (s *Store) associateLocked(cropID, plantID string) error {
	if contains(s.members[cropID], plantID) {
		return fmt.Errorf("plant %s in crop %s: %w", plantID, cropID, repository.ErrAlreadyExists)
	}
	s.members[cropID] = append(s.members[cropID], plantID)
	return nil
}

func (s *Store) InsertSnapshot(_ context.Context, readings []models.PlantReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	for _, r := range readings {
		r.LoggedAt = ts
		s.readings = append(s.readings, r)
	}
	return nil
}

func (s *Store) CurrentCrops(context.Context) ([]models.Crop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Crop, 0, len(s.crops))
	for _, c := range s.crops {
		c.PlantIDs = append([]string(nil), s.members[c.ID]...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateCrop(_ context.Context, crop models.Crop) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.crops[crop.ID]; exists {
		return false, nil
	}
	crop.PlantIDs = nil
	s.crops[crop.ID] = crop
	return true, nil
}

func (s *Store) CropsWithPlants(context.Context) ([]models.CropWithPlants, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.crops))
	for id := range s.crops {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.CropWithPlants, 0, len(ids))
	for _, id := range ids {
		entry := models.CropWithPlants{ID: id, Plants: []models.CropPlant{}}
		for _, pid := range s.members[id] {
			p, ok := s.plants[pid]
			if !ok {
				continue
			}
			entry.Plants = append(entry.Plants, models.CropPlant{
				ID:          pid,
				Type:        p.Type,
				Description: p.Description,
				PlantedTime: s.crops[id].PlantedAt,
			})
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) AddPlantToCrop(_ context.Context, cropID string, plant models.Plant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plants[plant.ID]; exists {
		return false, nil
	}
	if err := s.insertPlantLocked(plant); err != nil {
		return false, err
	}
	if err := s.associateLocked(cropID, plant.ID); err != nil {
		delete(s.plants, plant.ID)
		return false, err
	}
	return true, nil
}

func (s *Store) DeletePlantFromCrop(_ context.Context, cropID, plantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.members[cropID]
	for i, id := range ids {
		if id == plantID {
			s.members[cropID] = append(ids[:i:i], ids[i+1:]...)
			delete(s.plants, plantID)
			return nil
		}
	}
	return fmt.Errorf("plant %s in crop %s: %w", plantID, cropID, repository.ErrNotFound)
}

func (s *Store) PlantData(context.Context) ([]models.PlantDataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PlantDataPoint, len(s.readings))
	for i, r := range s.readings {
		out[i] = models.PlantDataPoint{PlantID: r.PlantID, LoggedAt: r.LoggedAt, Greenness: r.Greenness}
	}
	return out, nil
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
