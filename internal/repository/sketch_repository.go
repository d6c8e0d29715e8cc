// internal/repository/sketch_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"serial-bridge/internal/database"
	"serial-bridge/internal/model"
)

// sketchRepository keeps sketches as a JSON document in kv_store
type sketchRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewSketchRepository creates a postgres backed sketch repository
func NewSketchRepository(db *database.DB, logger *zap.Logger) SketchRepository {
	return &sketchRepository{
		db:     db,
		logger: logger,
	}
}

// List returns every stored sketch, or an empty list when nothing was saved yet
func (r *sketchRepository) List(ctx context.Context) ([]model.Sketch, error) {
	query := `SELECT value FROM kv_store WHERE key = $1`

	var raw []byte
	err := r.db.QueryRowContext(ctx, query, SketchesKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []model.Sketch{}, nil
		}
		r.logger.Error("Failed to load sketches", zap.Error(err))
		return nil, fmt.Errorf("failed to load sketches: %w", err)
	}

	sketches := []model.Sketch{}
	if err := json.Unmarshal(raw, &sketches); err != nil {
		return nil, fmt.Errorf("failed to decode sketches: %w", err)
	}
	return sketches, nil
}

// Get returns a single sketch by name
func (r *sketchRepository) Get(ctx context.Context, name string) (*model.Sketch, error) {
	sketches, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return findSketch(sketches, name)
}

// Save replaces the stored sketch list
func (r *sketchRepository) Save(ctx context.Context, sketches []model.Sketch) error {
	if err := validateSketches(sketches); err != nil {
		return err
	}
	if sketches == nil {
		sketches = []model.Sketch{}
	}

	raw, err := json.Marshal(sketches)
	if err != nil {
		return fmt.Errorf("failed to encode sketches: %w", err)
	}

	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.ExecContext(ctx, query, SketchesKey, string(raw)); err != nil {
		r.logger.Error("Failed to save sketches", zap.Error(err))
		return fmt.Errorf("failed to save sketches: %w", err)
	}

	r.logger.Debug("Sketches saved", zap.Int("count", len(sketches)))
	return nil
}
