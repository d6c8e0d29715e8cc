// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"serial-bridge/internal/model"
)

// SketchesKey is the fixed key the editor stores its file list under
const SketchesKey = "arduino_ide_files"

var (
	// ErrSketchNotFound is returned when no sketch has the requested name
	ErrSketchNotFound = errors.New("sketch not found")
	// ErrInvalidSketch rejects a sketch list that cannot be stored
	ErrInvalidSketch = errors.New("invalid sketch")
)

// SketchRepository defines sketch data access operations. The whole list
// is read and written as a single document.
type SketchRepository interface {
	List(ctx context.Context) ([]model.Sketch, error)
	Get(ctx context.Context, name string) (*model.Sketch, error)
	Save(ctx context.Context, sketches []model.Sketch) error
}

func findSketch(sketches []model.Sketch, name string) (*model.Sketch, error) {
	for i := range sketches {
		if sketches[i].Name == name {
			s := sketches[i]
			return &s, nil
		}
	}
	return nil, ErrSketchNotFound
}

func validateSketches(sketches []model.Sketch) error {
	seen := make(map[string]struct{}, len(sketches))
	for _, s := range sketches {
		if s.Name == "" {
			return fmt.Errorf("%w: name is required", ErrInvalidSketch)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidSketch, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}
