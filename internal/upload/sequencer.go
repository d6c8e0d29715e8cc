// internal/upload/sequencer.go
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"serial-bridge/internal/model"
	"serial-bridge/internal/utils"
)

// Protocol constants. The chunk size matches the receiving buffer and the
// hold time is the board's reset settling time.
const (
	DefaultChunkSize = 64
	DefaultResetHold = 250 * time.Millisecond
)

// Link is the part of the transport an upload drives
type Link interface {
	SetSignals(signals model.Signals) error
	Write(ctx context.Context, data []byte) error
}

// EventHandler receives progress and terminal events from the job goroutine
type EventHandler func(model.UploadEvent)

// Options configures a Sequencer at construction time
type Options struct {
	ChunkSize int
	ResetHold time.Duration
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Sequencer runs the reset handshake followed by a chunked write of the payload
type Sequencer struct {
	link      Link
	chunkSize int
	resetHold time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *zap.Logger
}

// NewSequencer creates a sequencer writing through link
func NewSequencer(link Link, opts Options, logger *zap.Logger) *Sequencer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ResetHold <= 0 {
		opts.ResetHold = DefaultResetHold
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return &Sequencer{
		link:      link,
		chunkSize: opts.ChunkSize,
		resetHold: opts.ResetHold,
		sleep:     opts.Sleep,
		logger:    logger.With(zap.String("component", "upload-sequencer")),
	}
}

// ChunkSize returns the fixed chunk size
func (s *Sequencer) ChunkSize() int {
	return s.chunkSize
}

// Begin starts a job for payload and returns immediately. Cancelling ctx
// fails the job (connection lost); Job.Cancel cancels it.
func (s *Sequencer) Begin(ctx context.Context, payload []byte, onEvent EventHandler) *Job {
	data := append([]byte(nil), payload...)
	job := newJob(uuid.New(), len(data), s.chunkSize)
	go s.run(ctx, job, data, onEvent)
	return job
}

func (s *Sequencer) run(ctx context.Context, job *Job, payload []byte, onEvent EventHandler) {
	opLogger := utils.NewUploadLogger(s.logger, job.id.String())
	opLogger.Start(len(payload), s.chunkSize)

	emit := func(evt model.UploadEvent) {
		if onEvent != nil {
			onEvent(evt)
		}
	}

	finish := func(state model.UploadState, err error) {
		snap := job.finish(state, err)
		evt := snap.event(terminalEventType(state))
		switch state {
		case model.UploadCompleted:
			opLogger.Success(snap.BytesSent)
		case model.UploadCancelled:
			opLogger.Cancelled(snap.BytesSent)
		default:
			opLogger.Error(err, snap.BytesSent)
		}
		emit(evt)
		job.close()
	}

	// Resetting: RTS high / DTR low, hold, then the opposite
	if err := s.link.SetSignals(model.Signals{DataTerminalReady: false, RequestToSend: true}); err != nil {
		finish(model.UploadFailed, fmt.Errorf("reset handshake failed: %w", err))
		return
	}
	if err := s.wait(ctx, job, s.resetHold); err != nil {
		s.abort(job, err, finish)
		return
	}
	if err := s.link.SetSignals(model.Signals{DataTerminalReady: true, RequestToSend: false}); err != nil {
		finish(model.UploadFailed, fmt.Errorf("reset handshake failed: %w", err))
		return
	}

	if !job.advance(model.UploadStreaming) {
		return
	}

	sent := 0
	for sent < len(payload) {
		if job.cancelRequested() {
			finish(model.UploadCancelled, ErrCancelled)
			return
		}
		if err := ctx.Err(); err != nil {
			finish(model.UploadFailed, cause(ctx))
			return
		}

		end := sent + s.chunkSize
		if end > len(payload) {
			end = len(payload)
		}

		// An in-flight chunk always completes; cancellation is observed between chunks
		if err := s.link.Write(context.WithoutCancel(ctx), payload[sent:end]); err != nil {
			finish(model.UploadFailed, err)
			return
		}

		sent = end
		snap := job.progress(sent)
		opLogger.Progress(snap.Progress())
		emit(snap.event(model.UploadEventProgress))
	}

	finish(model.UploadCompleted, nil)
}

// wait sleeps for d, returning early on cancellation or loss of the connection
func (s *Sequencer) wait(ctx context.Context, job *Job, d time.Duration) error {
	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stop := context.AfterFunc(job.cancelCtx, func() { cancel(ErrCancelled) })
	defer stop()

	if err := s.sleep(waitCtx, d); err != nil {
		return context.Cause(waitCtx)
	}
	if job.cancelRequested() {
		return ErrCancelled
	}
	return ctx.Err()
}

func (s *Sequencer) abort(job *Job, err error, finish func(model.UploadState, error)) {
	if errors.Is(err, ErrCancelled) {
		finish(model.UploadCancelled, err)
		return
	}
	finish(model.UploadFailed, err)
}

func terminalEventType(state model.UploadState) model.UploadEventType {
	switch state {
	case model.UploadCompleted:
		return model.UploadEventCompleted
	case model.UploadCancelled:
		return model.UploadEventCancelled
	default:
		return model.UploadEventFailed
	}
}

func cause(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
