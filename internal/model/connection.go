// internal/model/connection.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionState represents the lifecycle state of a serial connection
type ConnectionState string

const (
	ConnectionClosed  ConnectionState = "CLOSED"
	ConnectionOpening ConnectionState = "OPENING"
	ConnectionOpen    ConnectionState = "OPEN"
	ConnectionClosing ConnectionState = "CLOSING"
	ConnectionFailed  ConnectionState = "FAILED"
)

// Connection represents one physical link to a device
type Connection struct {
	ID       uuid.UUID       `json:"id"`
	Port     string          `json:"port"`
	BaudRate int             `json:"baud_rate"`
	State    ConnectionState `json:"state"`
	OpenedAt *time.Time      `json:"opened_at,omitempty"`
	ClosedAt *time.Time      `json:"closed_at,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// IsOpen reports whether the connection currently owns an open port
func (c *Connection) IsOpen() bool {
	return c != nil && c.State == ConnectionOpen
}

// Signals holds the modem control lines driven by the host
type Signals struct {
	DataTerminalReady bool `json:"data_terminal_ready"`
	RequestToSend     bool `json:"request_to_send"`
}
