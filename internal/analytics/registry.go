// Package analytics computes scalar plant metrics over the regions of a frame.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/roi"
)

var (
	// ErrDuplicateAnalytic is returned when an analytic name is registered twice.
	ErrDuplicateAnalytic = errors.New("analytic already registered")
	// ErrResultLength is returned when an analytic does not produce one value per region.
	ErrResultLength = errors.New("analytic returned wrong number of values")
)

// Analytic computes one value per region.
type Analytic interface {
	Name() string
	Description() string
	// Evaluate returns a value for every polygon, in polygon order.
	Evaluate(frame *models.Frame, rois []roi.Polygon) ([]float64, error)
}

// Registry holds the analytics run on every data cycle.
type Registry struct {
	mu        sync.RWMutex
	analytics []Analytic
}

// NewRegistry registers the given analytics in order.
func NewRegistry(analytics ...Analytic) (*Registry, error) {
	r := &Registry{}
	for _, a := range analytics {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an analytic. Names must be unique.
func (r *Registry) Register(a Analytic) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.analytics {
		if existing.Name() == a.Name() {
			return fmt.Errorf("%w: %q", ErrDuplicateAnalytic, a.Name())
		}
	}
	r.analytics = append(r.analytics, a)
	return nil
}

// Names lists registered analytics in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.analytics))
	for i, a := range r.analytics {
		names[i] = a.Name()
	}
	return names
}

// Run evaluates every analytic concurrently and returns results keyed by name.
// The first failing analytic cancels the run.
func (r *Registry) Run(ctx context.Context, frame *models.Frame, rois []roi.Polygon) (map[string][]float64, error) {
	r.mu.RLock()
	analytics := append([]Analytic(nil), r.analytics...)
	r.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string][]float64, len(analytics))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range analytics {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values, err := a.Evaluate(frame, rois)
			if err != nil {
				return fmt.Errorf("evaluate %s: %w", a.Name(), err)
			}
			if len(values) != len(rois) {
				return fmt.Errorf("evaluate %s: %w: got %d, want %d", a.Name(), ErrResultLength, len(values), len(rois))
			}
			mu.Lock()
			results[a.Name()] = values
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
