// Package protocoltest provides an in-memory serial host for tests.
package protocoltest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"serial-bridge/internal/model"
	"serial-bridge/internal/protocol"
)

// ErrPortClosed is returned by reads and writes on a closed FakePort
var ErrPortClosed = errors.New("fake port closed")

// FakeHost grants a single FakePort. Set Unavailable or OpenErr to script failures.
type FakeHost struct {
	mutex       sync.Mutex
	Unavailable bool
	OpenErr     error
	Requests    int
	Opens       int
	ports       []*FakePort
	next        *FakePort
}

// NewFakeHost creates a fake host
func NewFakeHost() *FakeHost {
	return &FakeHost{}
}

// RequestPort grants "fake0" unless the host is scripted to be unavailable
func (h *FakeHost) RequestPort(ctx context.Context, name string) (string, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.Requests++
	if h.Unavailable {
		return "", fmt.Errorf("%w: no device granted", protocol.ErrPortUnavailable)
	}
	if name == "" {
		name = "fake0"
	}
	return name, nil
}

// OpenPort returns the port queued with NextPort, or a fresh FakePort
func (h *FakeHost) OpenPort(name string, config *protocol.SerialConfig) (protocol.Port, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.Opens++
	if h.OpenErr != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrOpenFailed, h.OpenErr)
	}

	port := h.next
	h.next = nil
	if port == nil {
		port = NewFakePort()
	}
	port.Name = name
	port.BaudRate = config.BaudRate
	h.ports = append(h.ports, port)
	return port, nil
}

// NextPort queues the port handed out by the next OpenPort
func (h *FakeHost) NextPort(port *FakePort) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.next = port
}

// Port returns the most recently opened port
func (h *FakeHost) Port() *FakePort {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(h.ports) == 0 {
		return nil
	}
	return h.ports[len(h.ports)-1]
}

// FakePort is a scriptable in-memory Port
type FakePort struct {
	Name     string
	BaudRate int

	mutex    sync.Mutex
	reads    chan []byte
	readErr  chan error
	closed   chan struct{}
	isClosed bool
	written  [][]byte
	signals  []model.Signals
	dtr, rts bool

	// WriteErr fails the write with the given 1-based index; 0 disables
	WriteErr   error
	FailWriteN int
	// WriteHook runs before every write with its 1-based index
	WriteHook func(n int)
	// SignalErr fails every control line change
	SignalErr error
}

// NewFakePort creates an open fake port
func NewFakePort() *FakePort {
	return &FakePort{
		reads:   make(chan []byte, 64),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

// Inject queues bytes for the read loop
func (p *FakePort) Inject(data []byte) {
	p.reads <- append([]byte(nil), data...)
}

// Fail makes the pending or next read return err
func (p *FakePort) Fail(err error) {
	p.readErr <- err
}

// Read blocks until data is injected, a failure is scripted or the port closes
func (p *FakePort) Read(b []byte) (int, error) {
	select {
	case data := <-p.reads:
		return copy(b, data), nil
	case err := <-p.readErr:
		return 0, err
	case <-p.closed:
		return 0, ErrPortClosed
	}
}

// Write records data
func (p *FakePort) Write(b []byte) (int, error) {
	p.mutex.Lock()
	if p.isClosed {
		p.mutex.Unlock()
		return 0, ErrPortClosed
	}
	n := len(p.written) + 1
	hook := p.WriteHook
	p.mutex.Unlock()

	if hook != nil {
		hook(n)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.FailWriteN == n {
		err := p.WriteErr
		if err == nil {
			err = io.ErrClosedPipe
		}
		return 0, err
	}
	p.written = append(p.written, append([]byte(nil), b...))
	return len(b), nil
}

// SetDTR records the DTR line
func (p *FakePort) SetDTR(dtr bool) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.SignalErr != nil {
		return p.SignalErr
	}
	p.dtr = dtr
	return nil
}

// SetRTS records the RTS line and the resulting signal pair
func (p *FakePort) SetRTS(rts bool) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.SignalErr != nil {
		return p.SignalErr
	}
	p.rts = rts
	p.signals = append(p.signals, model.Signals{DataTerminalReady: p.dtr, RequestToSend: p.rts})
	return nil
}

// Close unblocks pending reads. Closing twice is a no-op.
func (p *FakePort) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.isClosed {
		p.isClosed = true
		close(p.closed)
	}
	return nil
}

// Closed reports whether Close was called
func (p *FakePort) Closed() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.isClosed
}

// Writes returns a copy of every write in order
func (p *FakePort) Writes() [][]byte {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	out := make([][]byte, len(p.written))
	copy(out, p.written)
	return out
}

// Written returns all written bytes concatenated
func (p *FakePort) Written() []byte {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	var out []byte
	for _, w := range p.written {
		out = append(out, w...)
	}
	return out
}

// Signals returns every DTR/RTS pair applied, in order
func (p *FakePort) Signals() []model.Signals {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	out := make([]model.Signals, len(p.signals))
	copy(out, p.signals)
	return out
}
