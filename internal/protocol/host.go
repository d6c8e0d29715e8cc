// internal/protocol/host.go
package protocol

import (
	"context"
	"io"
	"time"
)

// SerialConfig represents serial connection configuration
type SerialConfig struct {
	Port        string        `json:"port"`
	BaudRate    int           `json:"baud_rate"`
	DataBits    int           `json:"data_bits"`
	StopBits    int           `json:"stop_bits"`
	Parity      string        `json:"parity"`
	ReadTimeout time.Duration `json:"read_timeout"`
	OpenTimeout time.Duration `json:"open_timeout"`
}

// Port is an open serial device handle. Reads and writes may run concurrently.
// Close must unblock a pending Read.
type Port interface {
	io.ReadWriteCloser

	SetDTR(dtr bool) error
	SetRTS(rts bool) error
}

// Host is the environment that grants and opens serial ports
type Host interface {
	// RequestPort resolves the device to open. An empty name selects the
	// first suitable device. It blocks until a device is available or ctx
	// is done, and fails with ErrPortUnavailable.
	RequestPort(ctx context.Context, name string) (string, error)

	// OpenPort opens and configures the named device, failing with ErrOpenFailed
	OpenPort(name string, config *SerialConfig) (Port, error)
}
