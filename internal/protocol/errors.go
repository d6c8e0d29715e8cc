// internal/protocol/errors.go
package protocol

import (
	"errors"
	"strings"

	"go.bug.st/serial"
)

// Transport error taxonomy. Callers match with errors.Is; the underlying
// cause stays wrapped alongside the sentinel.
var (
	ErrPortUnavailable = errors.New("serial port unavailable")
	ErrOpenFailed      = errors.New("serial port open failed")
	ErrReadError       = errors.New("serial read failed")
	ErrWriteFailed     = errors.New("serial write failed")

	ErrNotOpen     = errors.New("serial port not open")
	ErrAlreadyOpen = errors.New("serial port already open")
)

// IsDisconnection reports whether err indicates the device went away
func IsDisconnection(err error) bool {
	if err == nil {
		return false
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		default:
			return false
		}
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "no such device") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "file already closed")
}
