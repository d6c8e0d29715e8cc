// internal/upload/job.go
package upload

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"serial-bridge/internal/model"
)

// ErrCancelled is attached to jobs stopped by an explicit cancellation
var ErrCancelled = errors.New("upload cancelled")

// Job is one in-flight upload. State only moves forward:
// Resetting -> Streaming -> Completed, with Failed and Cancelled reachable
// from either active state.
type Job struct {
	id        uuid.UUID
	cancelCtx context.Context
	cancelFn  context.CancelFunc
	done      chan struct{}

	mutex sync.RWMutex
	snap  model.UploadJob
	err   error
}

func newJob(id uuid.UUID, total, chunkSize int) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	return &Job{
		id:        id,
		cancelCtx: ctx,
		cancelFn:  cancel,
		done:      make(chan struct{}),
		snap: model.UploadJob{
			ID:         id,
			TotalBytes: total,
			ChunkSize:  chunkSize,
			State:      model.UploadResetting,
			StartedAt:  time.Now(),
		},
	}
}

// ID returns the job id
func (j *Job) ID() uuid.UUID {
	return j.id
}

// Cancel requests cancellation. A chunk already being written completes first.
func (j *Job) Cancel() {
	j.cancelFn()
}

// Done is closed once the job reaches a terminal state and its final event was emitted
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job is done or ctx ends
func (j *Job) Wait(ctx context.Context) (model.UploadJob, error) {
	select {
	case <-j.done:
		return j.Snapshot(), j.Err()
	case <-ctx.Done():
		return j.Snapshot(), ctx.Err()
	}
}

// Snapshot returns a copy of the job state
func (j *Job) Snapshot() model.UploadJob {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.snap
}

// State returns the current state
func (j *Job) State() model.UploadState {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.snap.State
}

// Err returns the error attached to a Failed or Cancelled job
func (j *Job) Err() error {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.err
}

func (j *Job) cancelRequested() bool {
	return j.cancelCtx.Err() != nil
}

func (j *Job) advance(state model.UploadState) bool {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	if j.snap.State.IsTerminal() {
		return false
	}
	j.snap.State = state
	return true
}

func (j *Job) progress(sent int) jobSnapshot {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	if sent > j.snap.BytesSent {
		j.snap.BytesSent = sent
	}
	return jobSnapshot{j.snap}
}

func (j *Job) finish(state model.UploadState, err error) jobSnapshot {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	if j.snap.State.IsTerminal() {
		return jobSnapshot{j.snap}
	}
	now := time.Now()
	j.snap.State = state
	j.snap.FinishedAt = &now
	if err != nil {
		j.err = err
		j.snap.Error = err.Error()
	}
	return jobSnapshot{j.snap}
}

func (j *Job) close() {
	j.cancelFn()
	close(j.done)
}

type jobSnapshot struct {
	model.UploadJob
}

func (s jobSnapshot) event(t model.UploadEventType) model.UploadEvent {
	return model.UploadEvent{
		Type:       t,
		JobID:      s.ID,
		BytesSent:  s.BytesSent,
		TotalBytes: s.TotalBytes,
		State:      s.State,
		Error:      s.Error,
	}
}
