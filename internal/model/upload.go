// internal/model/upload.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// UploadState represents the state of an upload job
type UploadState string

const (
	UploadResetting UploadState = "RESETTING"
	UploadStreaming UploadState = "STREAMING"
	UploadCompleted UploadState = "COMPLETED"
	UploadFailed    UploadState = "FAILED"
	UploadCancelled UploadState = "CANCELLED"
)

// IsTerminal reports whether no further transitions are possible
func (s UploadState) IsTerminal() bool {
	return s == UploadCompleted || s == UploadFailed || s == UploadCancelled
}

// UploadJob is a snapshot of one upload sequence
type UploadJob struct {
	ID         uuid.UUID   `json:"id"`
	TotalBytes int         `json:"total_bytes"`
	BytesSent  int         `json:"bytes_sent"`
	ChunkSize  int         `json:"chunk_size"`
	State      UploadState `json:"state"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Progress returns the completed fraction in the range [0, 1]
func (j UploadJob) Progress() float64 {
	if j.TotalBytes == 0 {
		if j.State == UploadCompleted {
			return 1
		}
		return 0
	}
	return float64(j.BytesSent) / float64(j.TotalBytes)
}

// UploadEventType represents the kind of upload event
type UploadEventType string

const (
	UploadEventProgress  UploadEventType = "PROGRESS"
	UploadEventCompleted UploadEventType = "COMPLETED"
	UploadEventFailed    UploadEventType = "FAILED"
	UploadEventCancelled UploadEventType = "CANCELLED"
)

// UploadEvent is emitted after every chunk and once on reaching a terminal state
type UploadEvent struct {
	Type       UploadEventType `json:"type"`
	JobID      uuid.UUID       `json:"job_id"`
	BytesSent  int             `json:"bytes_sent"`
	TotalBytes int             `json:"total_bytes"`
	State      UploadState     `json:"state"`
	Error      string          `json:"error,omitempty"`
}
