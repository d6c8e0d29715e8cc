// internal/protocol/serial_host.go
package protocol

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

const portPollInterval = 250 * time.Millisecond

// SerialHost implements Host on top of the operating system's serial ports
type SerialHost struct {
	logger    *zap.Logger
	listPorts func() ([]*enumerator.PortDetails, error)
}

// NewSerialHost creates a host backed by go.bug.st/serial
func NewSerialHost(logger *zap.Logger) *SerialHost {
	return &SerialHost{
		logger:    logger.With(zap.String("component", "serial-host")),
		listPorts: enumerator.GetDetailedPortsList,
	}
}

// RequestPort waits for the named port, or any USB serial port when name is empty
func (h *SerialHost) RequestPort(ctx context.Context, name string) (string, error) {
	ticker := time.NewTicker(portPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		ports, err := h.listPorts()
		if err != nil {
			lastErr = err
			h.logger.Debug("Failed to enumerate serial ports", zap.Error(err))
		} else if found := selectPort(ports, name); found != "" {
			return found, nil
		}

		// Pseudo terminals and other virtual ports are not enumerated
		if name != "" {
			if _, err := os.Stat(name); err == nil {
				return name, nil
			}
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return "", fmt.Errorf("%w: %w", ErrPortUnavailable, lastErr)
			}
			if name == "" {
				return "", fmt.Errorf("%w: no serial device found", ErrPortUnavailable)
			}
			return "", fmt.Errorf("%w: %s not found", ErrPortUnavailable, name)
		case <-ticker.C:
		}
	}
}

// OpenPort opens the device with the configured mode
func (h *SerialHost) OpenPort(name string, config *SerialConfig) (Port, error) {
	if config.BaudRate <= 0 {
		return nil, fmt.Errorf("%w: invalid baud rate %d", ErrOpenFailed, config.BaudRate)
	}

	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	switch config.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	switch config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	h.logger.Info("Opening serial port",
		zap.String("port", name),
		zap.Int("baud_rate", config.BaudRate),
	)

	port, err := serial.Open(name, mode)
	if err != nil {
		h.logger.Error("Failed to open serial port", zap.String("port", name), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	// Bounded reads let the read loop observe shutdown between reads
	if config.ReadTimeout > 0 {
		if err := port.SetReadTimeout(config.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("%w: failed to set read timeout: %w", ErrOpenFailed, err)
		}
	}

	return port, nil
}

func selectPort(ports []*enumerator.PortDetails, name string) string {
	for _, p := range ports {
		if name != "" {
			if p.Name == name {
				return p.Name
			}
			continue
		}
		if p.IsUSB {
			return p.Name
		}
	}
	return ""
}
