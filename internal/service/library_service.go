// internal/service/library_service.go
package service

import (
	"context"

	"go.uber.org/zap"

	"serial-bridge/internal/discovery"
	"serial-bridge/internal/model"
	"serial-bridge/internal/repository"
	"serial-bridge/internal/utils"
)

// PortLister lists serial ports on the host
type PortLister interface {
	ScanAll(ctx context.Context) ([]model.PortInfo, error)
}

// LibraryService serves the editor's sketches, boards and ports
type LibraryService struct {
	sketches repository.SketchRepository
	ports    PortLister
	logger   *utils.ServiceLogger
}

// NewLibraryService creates a new library service
func NewLibraryService(sketches repository.SketchRepository, ports PortLister, logger *zap.Logger) *LibraryService {
	return &LibraryService{
		sketches: sketches,
		ports:    ports,
		logger:   utils.NewServiceLogger(logger, "library-service"),
	}
}

// ListSketches returns every stored sketch
func (s *LibraryService) ListSketches(ctx context.Context) ([]model.Sketch, error) {
	return s.sketches.List(ctx)
}

// GetSketch returns one sketch by name
func (s *LibraryService) GetSketch(ctx context.Context, name string) (*model.Sketch, error) {
	return s.sketches.Get(ctx, name)
}

// SaveSketches replaces the stored sketch list
func (s *LibraryService) SaveSketches(ctx context.Context, sketches []model.Sketch) error {
	if err := s.sketches.Save(ctx, sketches); err != nil {
		return err
	}
	s.logger.Info("Sketches saved", zap.Int("count", len(sketches)))
	return nil
}

// ListPorts lists serial ports annotated with matching boards
func (s *LibraryService) ListPorts(ctx context.Context) ([]model.PortInfo, error) {
	return s.ports.ScanAll(ctx)
}

// Boards returns the supported board catalog
func (s *LibraryService) Boards() []model.Board {
	return discovery.Boards()
}
