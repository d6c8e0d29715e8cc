// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"serial-bridge/internal/model"
)

// Scanner lists serial ports through the OS enumerator
type Scanner struct {
	logger    *zap.Logger
	listPorts func() ([]*enumerator.PortDetails, error)
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{
		logger:    logger.With(zap.String("scanner", "serial")),
		listPorts: enumerator.GetDetailedPortsList,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable reports whether serial enumeration works on this host
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists the ports currently present
func (s *Scanner) Scan(ctx context.Context) ([]model.PortInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	details, err := s.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	ports := make([]model.PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, model.PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          strings.ToUpper(d.VID),
			PID:          strings.ToUpper(d.PID),
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}

	s.logger.Debug("Serial ports listed", zap.Int("count", len(ports)))
	return ports, nil
}
