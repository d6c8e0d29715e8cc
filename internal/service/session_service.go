// internal/service/session_service.go
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"serial-bridge/internal/discovery"
	"serial-bridge/internal/model"
	"serial-bridge/internal/protocol"
	"serial-bridge/internal/repository"
	"serial-bridge/internal/session"
	"serial-bridge/internal/utils"
)

// ErrInvalidRequest marks requests rejected before reaching the device
var ErrInvalidRequest = errors.New("invalid request")

// ConnectRequest selects a port and line speed. A board id supplies the
// baud rate when none is given.
type ConnectRequest struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
	Board    string `json:"board"`
}

// SendRequest carries one line of text for the device
type SendRequest struct {
	Text string `json:"text"`
}

// UploadRequest names exactly one payload source
type UploadRequest struct {
	Sketch        string `json:"sketch"`
	Payload       string `json:"payload"`
	PayloadBase64 string `json:"payload_base64"`
}

// SessionService joins the session manager with boards and stored sketches
type SessionService struct {
	manager  *session.Manager
	sketches repository.SketchRepository
	logger   *utils.ServiceLogger
}

// NewSessionService creates a new session service
func NewSessionService(manager *session.Manager, sketches repository.SketchRepository, logger *zap.Logger) *SessionService {
	return &SessionService{
		manager:  manager,
		sketches: sketches,
		logger:   utils.NewServiceLogger(logger, "session-service"),
	}
}

// Connect opens the requested port
func (s *SessionService) Connect(ctx context.Context, req *ConnectRequest) (model.Connection, error) {
	if req.BaudRate < 0 {
		return model.Connection{}, fmt.Errorf("%w: baud_rate must be positive", ErrInvalidRequest)
	}

	cfg := protocol.SerialConfig{Port: req.Port, BaudRate: req.BaudRate}
	if req.Board != "" {
		board, err := discovery.LookupBoard(req.Board)
		if err != nil {
			return model.Connection{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		if cfg.BaudRate == 0 {
			cfg.BaudRate = board.DefaultBaudRate
		}
	}

	return s.manager.Connect(ctx, cfg)
}

// Disconnect closes the session's port
func (s *SessionService) Disconnect(ctx context.Context) error {
	return s.manager.Disconnect(ctx)
}

// Send writes one line to the device
func (s *SessionService) Send(ctx context.Context, req *SendRequest) error {
	return s.manager.Send(ctx, req.Text)
}

// Upload resolves the payload and starts an upload job
func (s *SessionService) Upload(ctx context.Context, req *UploadRequest) (model.UploadJob, error) {
	payload, err := s.resolvePayload(ctx, req)
	if err != nil {
		return model.UploadJob{}, err
	}

	job, err := s.manager.Upload(payload)
	if err != nil {
		return model.UploadJob{}, err
	}

	s.logger.Info("Upload started",
		zap.String("job_id", job.ID().String()),
		zap.String("sketch", req.Sketch),
		zap.Int("total_bytes", len(payload)),
	)
	return job.Snapshot(), nil
}

// CancelUpload requests cancellation of the running upload
func (s *SessionService) CancelUpload() (model.UploadJob, error) {
	job, err := s.manager.CancelUpload()
	if err != nil {
		return model.UploadJob{}, err
	}
	return job.Snapshot(), nil
}

// Status returns the session status
func (s *SessionService) Status() session.Status {
	return s.manager.Status()
}

// Records returns buffered inbound records
func (s *SessionService) Records() []model.InboundRecord {
	return s.manager.History()
}

// ClearRecords drops buffered inbound records
func (s *SessionService) ClearRecords() {
	s.manager.ClearHistory()
}

// Subscribe registers a session event handler
func (s *SessionService) Subscribe(h session.Handler) session.SubscriptionID {
	return s.manager.Subscribe(h)
}

// Unsubscribe removes a session event handler
func (s *SessionService) Unsubscribe(id session.SubscriptionID) bool {
	return s.manager.Unsubscribe(id)
}

func (s *SessionService) resolvePayload(ctx context.Context, req *UploadRequest) ([]byte, error) {
	sources := 0
	for _, v := range []string{req.Sketch, req.Payload, req.PayloadBase64} {
		if v != "" {
			sources++
		}
	}
	if sources != 1 {
		return nil, fmt.Errorf("%w: exactly one of sketch, payload or payload_base64 is required", ErrInvalidRequest)
	}

	switch {
	case req.Sketch != "":
		sketch, err := s.sketches.Get(ctx, req.Sketch)
		if err != nil {
			return nil, err
		}
		return []byte(sketch.Content), nil
	case req.PayloadBase64 != "":
		payload, err := base64.StdEncoding.DecodeString(req.PayloadBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: payload_base64: %w", ErrInvalidRequest, err)
		}
		return payload, nil
	default:
		return []byte(req.Payload), nil
	}
}
