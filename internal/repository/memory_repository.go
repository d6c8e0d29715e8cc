// internal/repository/memory_repository.go
package repository

import (
	"context"
	"slices"
	"sync"

	"serial-bridge/internal/model"
)

type memorySketchRepository struct {
	mutex    sync.RWMutex
	sketches []model.Sketch
}

// NewMemorySketchRepository creates a sketch repository that lives for the
// lifetime of the process. Used when the database is disabled.
func NewMemorySketchRepository(initial ...model.Sketch) SketchRepository {
	return &memorySketchRepository{sketches: slices.Clone(initial)}
}

func (r *memorySketchRepository) List(ctx context.Context) ([]model.Sketch, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.sketches == nil {
		return []model.Sketch{}, nil
	}
	return slices.Clone(r.sketches), nil
}

func (r *memorySketchRepository) Get(ctx context.Context, name string) (*model.Sketch, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return findSketch(r.sketches, name)
}

func (r *memorySketchRepository) Save(ctx context.Context, sketches []model.Sketch) error {
	if err := validateSketches(sketches); err != nil {
		return err
	}

	r.mutex.Lock()
	r.sketches = slices.Clone(sketches)
	r.mutex.Unlock()
	return nil
}
