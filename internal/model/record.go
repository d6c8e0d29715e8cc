// internal/model/record.go
package model

import "time"

// RecordKind distinguishes complete lines from fragments received before a newline
type RecordKind string

const (
	RecordLine         RecordKind = "LINE"
	RecordPartialChunk RecordKind = "PARTIAL_CHUNK"
)

// InboundRecord is one decoded unit of data received from the device.
// Records are immutable once emitted.
type InboundRecord struct {
	Timestamp    time.Time  `json:"timestamp"`
	Kind         RecordKind `json:"kind"`
	Text         string     `json:"text"`
	NumericValue *float64   `json:"numeric_value,omitempty"`
}

// HasNumericValue reports whether the record text parsed as a number
func (r InboundRecord) HasNumericValue() bool {
	return r.NumericValue != nil
}

// Terminator is appended to an outbound payload before it is written
type Terminator string

const (
	TerminatorNone    Terminator = "NONE"
	TerminatorNewline Terminator = "NEWLINE"
)

// OutboundMessage is a user or system initiated write
type OutboundMessage struct {
	Payload    []byte     `json:"payload"`
	Terminator Terminator `json:"terminator"`
}

// Bytes returns the exact bytes to put on the wire
func (m OutboundMessage) Bytes() []byte {
	if m.Terminator != TerminatorNewline {
		return m.Payload
	}
	out := make([]byte, 0, len(m.Payload)+1)
	out = append(out, m.Payload...)
	return append(out, '\n')
}
