package crop

import (
	"errors"
	"fmt"
)

// ErrNoPlants is the domain error raised when a new crop is created without plants.
var ErrNoPlants = errors.New("no plants supplied for new crop")

// HydrationError reports a persisted plant that could not be rebuilt.
type HydrationError struct {
	CropID  string
	PlantID string
	Err     error
}

func (e *HydrationError) Error() string {
	return fmt.Sprintf("hydrate plant %s of crop %s: %v", e.PlantID, e.CropID, e.Err)
}

func (e *HydrationError) Unwrap() error { return e.Err }

// PersistenceError reports a snapshot that was dropped after every write attempt failed.
type PersistenceError struct {
	CropID   string
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist snapshot for crop %s failed after %d attempts: %v", e.CropID, e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
