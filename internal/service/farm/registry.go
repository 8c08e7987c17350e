// Package farm maps crop ids to their running supervisors.
package farm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/internal/config"
	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/repository"
	"github.com/mamadbah2/cropwatch/internal/service/crop"
)

var (
	// ErrCropNotFound is returned for crops without a running supervisor.
	ErrCropNotFound = errors.New("crop is not monitored")
	// ErrCropExists is returned when adding a crop that is already monitored.
	ErrCropExists = errors.New("crop is already monitored")

	errRegistryClosed = errors.New("farm registry is closed")
)

// SourceFactory opens the frame source of a crop.
type SourceFactory func(cropID string) (crop.FrameSource, error)

// Options configure every supervisor the registry creates.
type Options struct {
	// Template is copied for every crop; CropID and Plants are filled per crop.
	Template crop.Config
	// Shared collaborators; Store and Source are set per crop.
	Dependencies crop.Dependencies
	NewSource    SourceFactory
	Seed         *config.PlantSeed
}

// Registry owns the supervisors of every monitored crop.
type Registry struct {
	store  repository.Store
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu sync.RWMutex
	// starting holds crop ids whose supervisor is being built outside mu.
	starting map[string]struct{}
	crops    map[string]*crop.Supervisor
	closed   bool
}

func NewRegistry(store repository.Store, opts Options, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:  store,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		starting: make(map[string]struct{}),
		crops:    make(map[string]*crop.Supervisor),
	}
}

// Startup starts a supervisor for every current crop and every seeded crop.
// A crop that fails to start is logged and skipped; the joined errors are returned.
func (r *Registry) Startup(ctx context.Context) error {
	current, err := r.store.CurrentCrops(ctx)
	if err != nil {
		return fmt.Errorf("load current crops: %w", err)
	}

	ids := make([]string, 0, len(current))
	seen := make(map[string]bool, len(current))
	for _, c := range current {
		ids = append(ids, c.ID)
		seen[c.ID] = true
	}
	if r.opts.Seed != nil {
		for _, id := range r.opts.Seed.CropIDs() {
			if !seen[id] {
				ids = append(ids, id)
			}
		}
	}

	var errs []error
	for _, id := range ids {
		if _, err := r.Add(ctx, id, r.seedPlants(id)); err != nil {
			r.logger.Error("failed to start crop", zap.String("crop_id", id), zap.Error(err))
			errs = append(errs, err)
		}
	}

	r.logger.Info("farm started", zap.Int("crops", len(r.IDs())), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

func (r *Registry) seedPlants(cropID string) []models.Plant {
	if r.opts.Seed == nil {
		return nil
	}
	return r.opts.Seed.Plants(cropID)
}

// Add creates the crop record when missing, then builds and starts its supervisor.
// The id is reserved while the supervisor is built so lookups never wait on
// store or device I/O.
func (r *Registry) Add(ctx context.Context, cropID string, plants []models.Plant) (*crop.Supervisor, error) {
	if err := r.reserve(cropID); err != nil {
		return nil, err
	}

	sup, err := r.start(ctx, cropID, plants)

	r.mu.Lock()
	delete(r.starting, cropID)
	closed := r.closed
	if err == nil && !closed {
		r.crops[cropID] = sup
	}
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if closed {
		_ = sup.Close(ctx)
		return nil, fmt.Errorf("crop %s: %w", cropID, errRegistryClosed)
	}
	return sup, nil
}

func (r *Registry) reserve(cropID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("crop %s: %w", cropID, errRegistryClosed)
	}
	_, running := r.crops[cropID]
	_, starting := r.starting[cropID]
	if running || starting {
		return fmt.Errorf("crop %s: %w", cropID, ErrCropExists)
	}
	r.starting[cropID] = struct{}{}
	return nil
}

func (r *Registry) start(ctx context.Context, cropID string, plants []models.Plant) (*crop.Supervisor, error) {
	if _, err := r.store.CreateCrop(ctx, models.Crop{ID: cropID, PlantedAt: r.now().UTC()}); err != nil {
		return nil, fmt.Errorf("create crop %s: %w", cropID, err)
	}

	source, err := r.opts.NewSource(cropID)
	if err != nil {
		return nil, fmt.Errorf("open frame source for crop %s: %w", cropID, err)
	}

	cfg := r.opts.Template
	cfg.CropID = cropID
	cfg.Plants = plants
	deps := r.opts.Dependencies
	deps.Store = r.store
	deps.Source = source

	sup, err := crop.NewSupervisor(ctx, cfg, deps, r.logger)
	if err != nil {
		return nil, err
	}
	if err := sup.Initialize(ctx); err != nil {
		_ = sup.Close(ctx)
		return nil, err
	}
	return sup, nil
}

// Get returns the supervisor of a crop.
func (r *Registry) Get(cropID string) (*crop.Supervisor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sup, ok := r.crops[cropID]
	if !ok {
		return nil, fmt.Errorf("crop %s: %w", cropID, ErrCropNotFound)
	}
	return sup, nil
}

// IDs lists monitored crops in lexical order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.crops))
	for id := range r.crops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close shuts every supervisor down concurrently, bounded by ctx.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	crops := r.crops
	r.crops = make(map[string]*crop.Supervisor)
	r.closed = true
	r.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for id, sup := range crops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sup.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("close crop %s: %w", id, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
