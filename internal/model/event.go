// internal/model/event.go
package model

import "time"

// EventType represents the type of session event
type EventType string

const (
	EventRecord       EventType = "RECORD"
	EventOutbound     EventType = "OUTBOUND"
	EventStatusChange EventType = "STATUS_CHANGE"
	EventUpload       EventType = "UPLOAD"
)

// StatusChange describes a connection state transition
type StatusChange struct {
	ConnectionID string          `json:"connection_id,omitempty"`
	From         ConnectionState `json:"from"`
	To           ConnectionState `json:"to"`
	Error        string          `json:"error,omitempty"`
}

// OutboundRecord echoes text written to the device
type OutboundRecord struct {
	Text string `json:"text"`
}

// SessionEvent is delivered to session subscribers. Exactly one of the
// payload pointers is set, matching Type.
type SessionEvent struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Record    *InboundRecord  `json:"record,omitempty"`
	Outbound  *OutboundRecord `json:"outbound,omitempty"`
	Status    *StatusChange   `json:"status,omitempty"`
	Upload    *UploadEvent    `json:"upload,omitempty"`
}
