// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"serial-bridge/internal/model"
)

// PortScanner lists ports of one kind
type PortScanner interface {
	Scan(ctx context.Context) ([]model.PortInfo, error)
	GetScannerType() string
	IsAvailable() bool
}

// ScannerManager runs the registered scanners and tags ports with boards
type ScannerManager struct {
	scanners map[string]PortScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]PortScanner),
		logger:   logger,
	}
}

// RegisterScanner registers a port scanner
func (sm *ScannerManager) RegisterScanner(scanner PortScanner) {
	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll lists the ports of every available scanner, sorted by name.
// A failing scanner is logged and skipped unless it is the only one.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]model.PortInfo, error) {
	ports := []model.PortInfo{}
	var lastErr error
	succeeded := 0

	for scannerType, scanner := range sm.scanners {
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		found, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			lastErr = err
			continue
		}
		succeeded++

		for _, p := range found {
			if p.Board == nil {
				p.Board = MatchUSB(p.VID, p.PID)
			}
			ports = append(ports, p)
		}
		sm.logger.Debug("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("ports_found", len(found)),
		)
	}

	if succeeded == 0 && lastErr != nil {
		return nil, fmt.Errorf("port scan failed: %w", lastErr)
	}

	slices.SortFunc(ports, func(a, b model.PortInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return ports, nil
}

// GetAvailableScanners returns list of available scanner types
func (sm *ScannerManager) GetAvailableScanners() []string {
	var available []string
	for scannerType, scanner := range sm.scanners {
		if scanner.IsAvailable() {
			available = append(available, scannerType)
		}
	}
	slices.Sort(available)
	return available
}
