// internal/protocol/transport.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"serial-bridge/internal/model"
)

// DefaultReadBufferSize is the size of a single read from the port
const DefaultReadBufferSize = 256

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	WriteCount   int64     `json:"write_count"`
	ReadCount    int64     `json:"read_count"`
	ErrorCount   int64     `json:"error_count"`
	LastActivity time.Time `json:"last_activity"`
	IsConnected  bool      `json:"is_connected"`
}

// Transport owns a single serial connection: open/close, the read loop,
// writes and modem control lines. At most one port is open at a time.
type Transport struct {
	host           Host
	logger         *zap.Logger
	readBufferSize int

	mutex  sync.Mutex
	port   Port
	conn   model.Connection
	stopCh chan struct{}
	doneCh chan struct{}

	writeMutex sync.Mutex

	statsMutex sync.Mutex
	stats      TransportStats
}

// NewTransport creates a transport on top of host
func NewTransport(host Host, readBufferSize int, logger *zap.Logger) *Transport {
	if readBufferSize <= 0 {
		readBufferSize = DefaultReadBufferSize
	}
	return &Transport{
		host:           host,
		logger:         logger.With(zap.String("component", "transport")),
		readBufferSize: readBufferSize,
		conn:           model.Connection{State: model.ConnectionClosed},
	}
}

// Open requests a port from the host and opens it at the configured baud rate
func (t *Transport) Open(ctx context.Context, config *SerialConfig) (model.Connection, error) {
	t.mutex.Lock()
	switch t.conn.State {
	case model.ConnectionOpen, model.ConnectionOpening, model.ConnectionClosing:
		conn := t.conn
		t.mutex.Unlock()
		return conn, fmt.Errorf("%w: %s", ErrAlreadyOpen, conn.Port)
	}
	// A failed connection still holds its handle until re-opened
	stale := t.detachLocked()
	prev := t.conn.State
	t.conn = model.Connection{State: model.ConnectionOpening, BaudRate: config.BaudRate}
	t.mutex.Unlock()

	if stale != nil {
		t.release(stale)
	}

	if config.BaudRate <= 0 {
		t.setState(model.ConnectionClosed, nil)
		return t.Connection(), fmt.Errorf("%w: invalid baud rate %d", ErrOpenFailed, config.BaudRate)
	}

	openCtx := ctx
	if config.OpenTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, config.OpenTimeout)
		defer cancel()
	}

	name, err := t.host.RequestPort(openCtx, config.Port)
	if err != nil {
		t.setState(model.ConnectionClosed, nil)
		if !errors.Is(err, ErrPortUnavailable) {
			err = fmt.Errorf("%w: %w", ErrPortUnavailable, err)
		}
		t.logger.Warn("No serial port granted",
			zap.String("requested", config.Port),
			zap.String("previous_state", string(prev)),
			zap.Error(err),
		)
		return t.Connection(), err
	}

	port, err := t.host.OpenPort(name, config)
	if err != nil {
		if !errors.Is(err, ErrOpenFailed) {
			err = fmt.Errorf("%w: %w", ErrOpenFailed, err)
		}
		t.mutex.Lock()
		t.conn.Port = name
		t.mutex.Unlock()
		t.setState(model.ConnectionFailed, err)
		return t.Connection(), err
	}

	now := time.Now()
	t.mutex.Lock()
	t.port = port
	t.conn = model.Connection{
		ID:       uuid.New(),
		Port:     name,
		BaudRate: config.BaudRate,
		State:    model.ConnectionOpen,
		OpenedAt: &now,
	}
	conn := t.conn
	t.mutex.Unlock()

	t.statsMutex.Lock()
	t.stats = TransportStats{IsConnected: true, LastActivity: now}
	t.statsMutex.Unlock()

	t.logger.Info("Serial port opened",
		zap.String("connection_id", conn.ID.String()),
		zap.String("port", name),
		zap.Int("baud_rate", config.BaudRate),
	)
	return conn, nil
}

// StartReadLoop starts reading until the port is closed or a read fails.
// onBytes receives every chunk in arrival order. onError is called once,
// after the loop has exited, if it stopped because of a read failure.
func (t *Transport) StartReadLoop(onBytes func([]byte), onError func(error)) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.port == nil || t.conn.State != model.ConnectionOpen {
		return ErrNotOpen
	}
	if t.doneCh != nil {
		return fmt.Errorf("read loop already running on %s", t.conn.Port)
	}

	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go t.readLoop(t.port, t.stopCh, t.doneCh, onBytes, onError)
	return nil
}

func (t *Transport) readLoop(port Port, stop <-chan struct{}, done chan<- struct{}, onBytes func([]byte), onError func(error)) {
	err := t.pump(port, stop, onBytes)
	if err != nil {
		t.statsMutex.Lock()
		t.stats.ErrorCount++
		t.statsMutex.Unlock()
		t.setState(model.ConnectionFailed, err)
		t.logger.Error("Serial read loop terminated", zap.Error(err))
	}
	close(done)

	if err != nil && onError != nil {
		onError(err)
	}
}

func (t *Transport) pump(port Port, stop <-chan struct{}, onBytes func([]byte)) error {
	buf := make([]byte, t.readBufferSize)
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			t.statsMutex.Lock()
			t.stats.BytesRead += int64(n)
			t.stats.ReadCount++
			t.stats.LastActivity = time.Now()
			t.statsMutex.Unlock()

			onBytes(chunk)
		}
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
			}
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("device closed the stream: %w", err)
			}
			return fmt.Errorf("%w: %w", ErrReadError, err)
		}
	}
}

// Write writes data to the device, in call order with other writes
func (t *Transport) Write(ctx context.Context, data []byte) error {
	t.mutex.Lock()
	port := t.port
	state := t.conn.State
	t.mutex.Unlock()

	if port == nil || state != model.ConnectionOpen {
		return ErrNotOpen
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	written := 0
	for written < len(data) {
		n, err := port.Write(data[written:])
		written += n
		if err == nil && n == 0 {
			err = io.ErrShortWrite
		}
		if err != nil {
			t.statsMutex.Lock()
			t.stats.ErrorCount++
			t.statsMutex.Unlock()
			t.logger.Error("Serial write failed",
				zap.Int("bytes_written", written),
				zap.Int("bytes_to_write", len(data)),
				zap.Error(err),
			)
			return fmt.Errorf("%w: wrote %d of %d bytes: %w", ErrWriteFailed, written, len(data), err)
		}
	}

	t.statsMutex.Lock()
	t.stats.BytesWritten += int64(written)
	t.stats.WriteCount++
	t.stats.LastActivity = time.Now()
	t.statsMutex.Unlock()

	t.logger.Debug("Serial write completed", zap.Int("bytes", written))
	return nil
}

// SetSignals drives the DTR and RTS control lines
func (t *Transport) SetSignals(signals model.Signals) error {
	t.mutex.Lock()
	port := t.port
	state := t.conn.State
	t.mutex.Unlock()

	if port == nil || state != model.ConnectionOpen {
		return ErrNotOpen
	}

	if err := port.SetDTR(signals.DataTerminalReady); err != nil {
		return fmt.Errorf("failed to set DTR: %w", err)
	}
	if err := port.SetRTS(signals.RequestToSend); err != nil {
		return fmt.Errorf("failed to set RTS: %w", err)
	}

	t.logger.Debug("Control lines set",
		zap.Bool("dtr", signals.DataTerminalReady),
		zap.Bool("rts", signals.RequestToSend),
	)
	return nil
}

// Close stops the read loop and closes the port. Closing a closed
// transport is a no-op.
func (t *Transport) Close() error {
	t.mutex.Lock()
	h := t.detachLocked()
	if h == nil {
		if t.conn.State == model.ConnectionFailed {
			t.conn.State = model.ConnectionClosed
		}
		t.mutex.Unlock()
		return nil
	}
	t.conn.State = model.ConnectionClosing
	t.mutex.Unlock()

	err := t.release(h)

	now := time.Now()
	t.mutex.Lock()
	t.conn.State = model.ConnectionClosed
	t.conn.ClosedAt = &now
	t.mutex.Unlock()

	if err != nil {
		t.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	t.logger.Info("Serial port closed", zap.String("port", t.Connection().Port))
	return nil
}

// Connection returns a snapshot of the current connection
func (t *Transport) Connection() model.Connection {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.conn
}

// IsOpen returns whether the connection is open
func (t *Transport) IsOpen() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.port != nil && t.conn.State == model.ConnectionOpen
}

// Stats returns a copy of the transport statistics
func (t *Transport) Stats() TransportStats {
	t.statsMutex.Lock()
	defer t.statsMutex.Unlock()
	return t.stats
}

type handle struct {
	port Port
	stop chan struct{}
	done chan struct{}
}

// detachLocked takes ownership of the open port and read loop channels
func (t *Transport) detachLocked() *handle {
	if t.port == nil {
		return nil
	}
	h := &handle{port: t.port, stop: t.stopCh, done: t.doneCh}
	t.port = nil
	t.stopCh = nil
	t.doneCh = nil
	return h
}

// release stops the reader, then closes the port and waits for the reader to exit
func (t *Transport) release(h *handle) error {
	if h.stop != nil {
		close(h.stop)
	}

	err := h.port.Close()

	if h.done != nil {
		<-h.done
	}

	t.statsMutex.Lock()
	t.stats.IsConnected = false
	t.statsMutex.Unlock()
	return err
}

func (t *Transport) setState(state model.ConnectionState, err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	// Close owns the transition out of Closing
	if state == model.ConnectionFailed && t.conn.State == model.ConnectionClosing {
		return
	}
	t.conn.State = state
	if err != nil {
		t.conn.Error = err.Error()
	}
}
