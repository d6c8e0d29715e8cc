// internal/session/manager.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"serial-bridge/internal/model"
	"serial-bridge/internal/protocol"
	"serial-bridge/internal/upload"
	"serial-bridge/internal/utils"
)

var (
	// ErrUploadInProgress rejects writes and new uploads while a job is active
	ErrUploadInProgress = errors.New("upload in progress")
	// ErrNoActiveUpload is returned when cancelling without an active job
	ErrNoActiveUpload = errors.New("no active upload")
	// ErrConnectionLost is attached to uploads failed by a disconnect or read error
	ErrConnectionLost = errors.New("connection lost")
)

// Options configures a Manager
type Options struct {
	// Defaults fill zero fields of the config passed to Connect
	Defaults       protocol.SerialConfig
	ReadBufferSize int
	HistorySize    int
	Framer         protocol.FramerOptions
	Upload         upload.Options
}

// Status is a point-in-time view of the session
type Status struct {
	Connection  model.Connection        `json:"connection"`
	Upload      *model.UploadJob        `json:"upload,omitempty"`
	Stats       protocol.TransportStats `json:"stats"`
	Subscribers int                     `json:"subscribers"`
	Records     int                     `json:"records"`
}

// Manager is the session facade: it owns the transport, decodes and frames
// inbound data, runs uploads and fans events out to subscribers.
type Manager struct {
	transport *protocol.Transport
	sequencer *upload.Sequencer
	decoder   *protocol.Decoder
	framer    *protocol.Framer
	history   *History
	subs      subscriberList
	defaults  protocol.SerialConfig
	logger    *utils.SessionLogger

	// mutex serializes connect, disconnect, upload start and read failure handling
	mutex      sync.Mutex
	connCtx    context.Context
	connCancel context.CancelCauseFunc

	jobMutex sync.Mutex
	job      *upload.Job
}

// NewManager creates a session manager on top of host
func NewManager(host protocol.Host, opts Options, logger *zap.Logger) *Manager {
	transport := protocol.NewTransport(host, opts.ReadBufferSize, logger)
	return &Manager{
		transport: transport,
		sequencer: upload.NewSequencer(transport, opts.Upload, logger),
		decoder:   protocol.NewDecoder(),
		framer:    protocol.NewFramer(opts.Framer),
		history:   NewHistory(opts.HistorySize),
		defaults:  opts.Defaults,
		logger:    utils.NewSessionLogger(logger),
	}
}

// Connect opens a port and starts forwarding records to subscribers
func (m *Manager) Connect(ctx context.Context, config protocol.SerialConfig) (model.Connection, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.connectLocked(ctx, config)
}

func (m *Manager) connectLocked(ctx context.Context, config protocol.SerialConfig) (model.Connection, error) {
	cfg := m.withDefaults(config)
	before := m.transport.Connection()

	conn, err := m.transport.Open(ctx, &cfg)
	if err != nil {
		m.logger.LogConnection("connect", cfg.Port, false, err)
		return conn, err
	}

	// A failed connection replaced before its read error was handled
	if m.connCancel != nil {
		m.connCancel(ErrConnectionLost)
	}
	m.decoder.Reset()
	m.framer.Reset()
	m.connCtx, m.connCancel = context.WithCancelCause(context.Background())

	m.emitStatus(conn.ID.String(), before.State, model.ConnectionOpen, nil)

	connID := conn.ID.String()
	err = m.transport.StartReadLoop(m.onBytes, func(err error) { m.onReadError(connID, err) })
	if err != nil {
		m.connCancel(err)
		m.transport.Close()
		m.emitStatus(connID, model.ConnectionOpen, model.ConnectionClosed, err)
		return m.transport.Connection(), fmt.Errorf("failed to start read loop: %w", err)
	}

	m.logger.LogConnection("connect", conn.Port, true, nil)
	return conn, nil
}

// Disconnect flushes any partial line, stops the read loop and closes the
// port. An active upload fails with ErrConnectionLost.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.disconnectLocked(ctx)
}

func (m *Manager) disconnectLocked(ctx context.Context) error {
	conn := m.transport.Connection()
	if conn.State == model.ConnectionClosed {
		return nil
	}

	if m.connCancel != nil {
		m.connCancel(ErrConnectionLost)
	}

	closeErr := m.transport.Close()
	m.waitForUpload(ctx)
	m.flushPartial()

	// Keep the failure reason when the read error was not reported yet
	var reason error
	if conn.State == model.ConnectionFailed && conn.Error != "" {
		reason = errors.New(conn.Error)
	}
	m.emitStatus(conn.ID.String(), conn.State, model.ConnectionClosed, reason)
	m.logger.LogConnection("disconnect", conn.Port, closeErr == nil, closeErr)
	return closeErr
}

// Send writes text followed by a newline. Rejected while an upload is active.
func (m *Manager) Send(ctx context.Context, text string) error {
	// Held across the write so an upload cannot start in between
	m.jobMutex.Lock()
	if m.job != nil && !m.job.State().IsTerminal() {
		m.jobMutex.Unlock()
		return ErrUploadInProgress
	}

	msg := model.OutboundMessage{Payload: []byte(text), Terminator: model.TerminatorNewline}
	err := m.transport.Write(ctx, msg.Bytes())
	m.jobMutex.Unlock()
	if err != nil {
		return err
	}

	m.subs.emit(model.SessionEvent{
		Type:      model.EventOutbound,
		Timestamp: time.Now(),
		Outbound:  &model.OutboundRecord{Text: text},
	})
	return nil
}

// Upload starts the reset handshake and chunked write of payload
func (m *Manager) Upload(payload []byte) (*upload.Job, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.transport.IsOpen() {
		return nil, protocol.ErrNotOpen
	}

	m.jobMutex.Lock()
	defer m.jobMutex.Unlock()
	if m.job != nil && !m.job.State().IsTerminal() {
		return nil, ErrUploadInProgress
	}

	m.job = m.sequencer.Begin(m.connCtx, payload, m.forwardUpload)
	return m.job, nil
}

// CancelUpload requests cancellation of the active upload
func (m *Manager) CancelUpload() (*upload.Job, error) {
	job := m.activeJob()
	if job == nil {
		return nil, ErrNoActiveUpload
	}
	job.Cancel()
	return job, nil
}

// Job returns the most recent upload job, if any
func (m *Manager) Job() *upload.Job {
	m.jobMutex.Lock()
	defer m.jobMutex.Unlock()
	return m.job
}

// Subscribe registers a handler; handlers run in subscription order
func (m *Manager) Subscribe(h Handler) SubscriptionID {
	return m.subs.add(h)
}

// Unsubscribe removes a handler. Safe to call from within a handler.
func (m *Manager) Unsubscribe(id SubscriptionID) bool {
	return m.subs.remove(id)
}

// Connection returns a snapshot of the current connection
func (m *Manager) Connection() model.Connection {
	return m.transport.Connection()
}

// Status returns the session status
func (m *Manager) Status() Status {
	status := Status{
		Connection:  m.transport.Connection(),
		Stats:       m.transport.Stats(),
		Subscribers: m.subs.len(),
		Records:     m.history.Len(),
	}
	if job := m.Job(); job != nil {
		snap := job.Snapshot()
		status.Upload = &snap
	}
	return status
}

// History returns buffered records, oldest first
func (m *Manager) History() []model.InboundRecord {
	return m.history.Records()
}

// ClearHistory drops buffered records
func (m *Manager) ClearHistory() {
	m.history.Clear()
}

func (m *Manager) onBytes(chunk []byte) {
	before := m.decoder.Anomalies()
	text := m.decoder.Feed(chunk)
	if after := m.decoder.Anomalies(); after > before {
		m.logger.Warn("Malformed bytes replaced in serial stream",
			zap.Int("replaced", after-before),
			zap.Int("total_replaced", after),
		)
	}

	for _, rec := range m.framer.Push(text) {
		m.deliver(rec)
	}
}

func (m *Manager) onReadError(connID string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	conn := m.transport.Connection()
	if conn.ID.String() != connID || conn.State != model.ConnectionFailed {
		return
	}

	if m.connCancel != nil {
		m.connCancel(fmt.Errorf("%w: %w", ErrConnectionLost, err))
	}
	m.flushPartial()

	m.emitStatus(connID, model.ConnectionOpen, model.ConnectionFailed, err)
	m.logger.LogConnection("read", conn.Port, false, err)
	if protocol.IsDisconnection(err) {
		m.logger.Warn("Device disconnected", zap.String("port", conn.Port))
	}
}

func (m *Manager) flushPartial() {
	if text := m.decoder.Flush(); text != "" {
		for _, rec := range m.framer.Push(text) {
			m.deliver(rec)
		}
	}
	if rec, ok := m.framer.FlushPartial(); ok {
		m.deliver(rec)
	}
}

func (m *Manager) deliver(rec model.InboundRecord) {
	m.history.Add(rec)
	m.logger.Debug("Record received",
		zap.String("kind", string(rec.Kind)),
		zap.String("text", rec.Text),
	)
	r := rec
	m.subs.emit(model.SessionEvent{
		Type:      model.EventRecord,
		Timestamp: rec.Timestamp,
		Record:    &r,
	})
}

func (m *Manager) forwardUpload(evt model.UploadEvent) {
	e := evt
	m.subs.emit(model.SessionEvent{
		Type:      model.EventUpload,
		Timestamp: time.Now(),
		Upload:    &e,
	})
}

func (m *Manager) emitStatus(connID string, from, to model.ConnectionState, err error) {
	change := &model.StatusChange{ConnectionID: connID, From: from, To: to}
	if err != nil {
		change.Error = err.Error()
	}
	m.subs.emit(model.SessionEvent{
		Type:      model.EventStatusChange,
		Timestamp: time.Now(),
		Status:    change,
	})
}

func (m *Manager) activeJob() *upload.Job {
	m.jobMutex.Lock()
	defer m.jobMutex.Unlock()
	if m.job == nil || m.job.State().IsTerminal() {
		return nil
	}
	return m.job
}

func (m *Manager) waitForUpload(ctx context.Context) {
	job := m.Job()
	if job == nil {
		return
	}
	select {
	case <-job.Done():
	case <-ctx.Done():
		m.logger.Warn("Upload did not stop before disconnect completed",
			zap.String("job_id", job.ID().String()),
		)
	}
}

func (m *Manager) withDefaults(config protocol.SerialConfig) protocol.SerialConfig {
	if config.Port == "" {
		config.Port = m.defaults.Port
	}
	if config.BaudRate == 0 {
		config.BaudRate = m.defaults.BaudRate
	}
	if config.DataBits == 0 {
		config.DataBits = m.defaults.DataBits
	}
	if config.StopBits == 0 {
		config.StopBits = m.defaults.StopBits
	}
	if config.Parity == "" {
		config.Parity = m.defaults.Parity
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = m.defaults.ReadTimeout
	}
	if config.OpenTimeout == 0 {
		config.OpenTimeout = m.defaults.OpenTimeout
	}
	return config
}
