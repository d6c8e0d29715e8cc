// internal/session/history.go
package session

import (
	"sync"

	"serial-bridge/internal/model"
)

// DefaultHistorySize is the number of records kept for late subscribers
const DefaultHistorySize = 200

// History is a bounded ring buffer of records; the oldest is evicted first
type History struct {
	mutex   sync.RWMutex
	records []model.InboundRecord
	start   int
	count   int
}

// NewHistory creates a ring buffer holding up to size records
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{records: make([]model.InboundRecord, size)}
}

// Add appends a record, evicting the oldest when full
func (h *History) Add(rec model.InboundRecord) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	idx := (h.start + h.count) % len(h.records)
	h.records[idx] = rec
	if h.count < len(h.records) {
		h.count++
		return
	}
	h.start = (h.start + 1) % len(h.records)
}

// Records returns the buffered records, oldest first
func (h *History) Records() []model.InboundRecord {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	out := make([]model.InboundRecord, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.records[(h.start+i)%len(h.records)]
	}
	return out
}

// Len returns the number of buffered records
func (h *History) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// Cap returns the maximum number of records kept
func (h *History) Cap() int {
	return len(h.records)
}

// Clear drops all records
func (h *History) Clear() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	clear(h.records)
	h.start = 0
	h.count = 0
}
