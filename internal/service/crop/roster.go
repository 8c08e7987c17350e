package crop

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/repository"
)

// Outcome records how the roster was reconciled at construction.
type Outcome int

const (
	// RosterHydrated means the plants were rebuilt from persistence.
	RosterHydrated Outcome = iota + 1
	// RosterProvisioned means the supplied plants were inserted for a new crop.
	RosterProvisioned
	// RosterEmpty means a new crop was created without plants and runs with an empty roster.
	RosterEmpty
)

func (o Outcome) String() string {
	switch o {
	case RosterHydrated:
		return "hydrated"
	case RosterProvisioned:
		return "provisioned"
	case RosterEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

var (
	errMissingType      = errors.New("plant type is missing")
	errMissingPlantedAt = errors.New("planted time is missing")
	errNoGeometry       = errors.New("no stored or configured geometry")
)

// reconcile builds the roster exactly once: either from persistence or from the supplied plants.
func (s *Supervisor) reconcile(ctx context.Context, supplied []models.Plant) ([]models.Plant, Outcome, error) {
	ids, err := s.store.PlantIDs(ctx, s.cfg.CropID)
	if err != nil {
		return nil, 0, fmt.Errorf("list plants of crop %s: %w", s.cfg.CropID, err)
	}

	if len(ids) > 0 {
		if len(supplied) > 0 {
			s.logger.Warn("crop already has plants, ignoring supplied plants",
				zap.Int("existing", len(ids)), zap.Int("ignored", len(supplied)))
		}
		plants, err := s.hydrate(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		return plants, RosterHydrated, nil
	}

	if len(supplied) == 0 {
		err := fmt.Errorf("crop %s: %w", s.cfg.CropID, ErrNoPlants)
		if s.cfg.RequirePlants {
			return nil, 0, err
		}
		s.logger.Warn("crop starts with an empty roster", zap.Error(err))
		return nil, RosterEmpty, nil
	}

	plants, err := s.provision(ctx, supplied)
	if err != nil {
		return nil, 0, err
	}
	return plants, RosterProvisioned, nil
}

func (s *Supervisor) hydrate(ctx context.Context, ids []string) ([]models.Plant, error) {
	plants := make([]models.Plant, 0, len(ids))
	for _, id := range ids {
		p, err := s.hydratePlant(ctx, id)
		if err != nil {
			return nil, &HydrationError{CropID: s.cfg.CropID, PlantID: id, Err: err}
		}
		plants = append(plants, p)
	}
	s.logger.Info("plants hydrated from persistence", zap.Int("plants", len(plants)))
	return plants, nil
}

func (s *Supervisor) hydratePlant(ctx context.Context, id string) (models.Plant, error) {
	history, err := s.store.PlantHistory(ctx, id)
	if err != nil {
		return models.Plant{}, fmt.Errorf("load history: %w", err)
	}
	details, err := s.store.PlantDetails(ctx, s.cfg.CropID, id)
	if err != nil {
		return models.Plant{}, fmt.Errorf("load details: %w", err)
	}
	if details.Type == "" {
		return models.Plant{}, errMissingType
	}
	if details.PlantedAt.IsZero() {
		return models.Plant{}, errMissingPlantedAt
	}

	plant := models.Plant{
		ID:        id,
		Type:      details.Type,
		PlantedAt: details.PlantedAt,
	}

	index := -1
	switch n := len(history); {
	case n > 0:
		last := history[n-1]
		if math.IsNaN(last.Greenness) || last.Greenness < 0 || last.Greenness > 1 {
			return models.Plant{}, fmt.Errorf("greenness %v out of range", last.Greenness)
		}
		index = last.ROI
		plant.Care = last.Care()
		plant.SetMetric(s.cfg.GreennessMetric, last.Greenness)
	case details.ROI.HasGeometry():
		index = details.ROI.Index
	default:
		if idx, ok := models.DefaultROIIndex(id); ok {
			index = idx
		}
	}

	roi, err := s.hydrateROI(index, details.ROI)
	if err != nil {
		return models.Plant{}, err
	}
	if !roi.Valid() {
		s.logger.Warn("plant has no roi, metrics disabled", zap.String("plant_id", id))
	}
	plant.ROI = roi
	return plant, nil
}

// hydrateROI resolves the full geometry of a hydrated plant. The geometry
// stored with the plant wins while its index matches; otherwise the ROI table
// entry is used as a whole. Offsets recorded in readings are never mixed in.
func (s *Supervisor) hydrateROI(index int, stored models.ROIDescriptor) (models.ROIDescriptor, error) {
	if index < 0 {
		return models.ROIDescriptor{Index: -1}, nil
	}
	if stored.HasGeometry() && stored.Index == index {
		return stored, nil
	}
	if s.roiTable != nil {
		if geo, ok := s.roiTable.Lookup(index); ok {
			return geo, nil
		}
	}
	return models.ROIDescriptor{}, fmt.Errorf("roi index %d: %w", index, errNoGeometry)
}

func (s *Supervisor) provision(ctx context.Context, supplied []models.Plant) ([]models.Plant, error) {
	plants := make([]models.Plant, 0, len(supplied))
	for _, p := range supplied {
		p = p.Clone()
		if s.roiTable != nil {
			p.ROI = s.roiTable.Resolve(p.ROI)
		}
		if p.ROI.Valid() && !p.ROI.HasGeometry() {
			s.logger.Warn("plant roi has no geometry, metrics disabled",
				zap.String("plant_id", p.ID), zap.Int("roi", p.ROI.Index))
		}

		if err := s.store.InsertPlant(ctx, p); err != nil {
			if !errors.Is(err, repository.ErrAlreadyExists) {
				return nil, fmt.Errorf("insert plant %s: %w", p.ID, err)
			}
			s.logger.Warn("plant already stored, associating existing record", zap.String("plant_id", p.ID))
		}
		if err := s.store.AssociatePlant(ctx, s.cfg.CropID, p.ID); err != nil {
			return nil, fmt.Errorf("associate plant %s: %w", p.ID, err)
		}
		plants = append(plants, p)
	}
	s.logger.Info("plants provisioned for new crop", zap.Int("plants", len(plants)))
	return plants, nil
}
