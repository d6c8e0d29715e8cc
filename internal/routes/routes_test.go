package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"serial-bridge/internal/config"
	"serial-bridge/internal/model"
	"serial-bridge/internal/protocol"
	"serial-bridge/internal/protocol/protocoltest"
	"serial-bridge/internal/repository"
	"serial-bridge/internal/service"
	"serial-bridge/internal/session"
	"serial-bridge/internal/upload"
)

type apiResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	engine *gin.Engine
	host   *protocoltest.FakeHost
	router *Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	// background goroutines may log after the test returns
	logger := zap.NewNop()

	cfg := &config.Config{
		App: config.AppConfig{Name: "serial-bridge", Version: "test", Environment: "test"},
	}

	host := protocoltest.NewFakeHost()
	manager := session.NewManager(host, session.Options{
		Defaults: protocol.SerialConfig{BaudRate: 9600},
		Upload: upload.Options{
			ChunkSize: 64,
			Sleep:     func(ctx context.Context, d time.Duration) error { return ctx.Err() },
		},
	}, logger)

	sketches := repository.NewMemorySketchRepository()
	scanner := &stubScanner{ports: []model.PortInfo{{Name: "/dev/ttyACM0", VID: "2341", PID: "0043"}}}

	router := NewRouter(cfg, logger, nil,
		service.NewSessionService(manager, sketches, logger),
		service.NewLibraryService(sketches, scanner, logger),
	)
	engine := router.SetupRouter()

	t.Cleanup(func() {
		router.Close()
		manager.Disconnect(context.Background())
	})
	return &testServer{engine: engine, host: host, router: router}
}

type stubScanner struct {
	ports []model.PortInfo
}

func (s *stubScanner) ScanAll(ctx context.Context) ([]model.PortInfo, error) {
	return s.ports, nil
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp apiResponse
	if strings.HasPrefix(path, "/api/") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: invalid JSON %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, resp
}

func TestSessionEndpoints(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodPost, "/api/v1/session/send", `{"text":"hi"}`)
	if w.Code != http.StatusConflict || resp.Error == nil || resp.Error.Code != "NOT_OPEN" {
		t.Errorf("Expected 409 NOT_OPEN before connect, got %d %+v", w.Code, resp.Error)
	}

	w, resp = s.do(t, http.MethodPost, "/api/v1/session/connect", `{"board":"esp32"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from connect, got %d: %s", w.Code, w.Body.String())
	}
	var conn model.Connection
	if err := json.Unmarshal(resp.Data, &conn); err != nil {
		t.Fatalf("Invalid connection payload: %v", err)
	}
	if conn.State != model.ConnectionOpen || conn.BaudRate != 115200 {
		t.Errorf("Unexpected connection %+v", conn)
	}

	w, resp = s.do(t, http.MethodPost, "/api/v1/session/connect", `{}`)
	if w.Code != http.StatusConflict || resp.Error.Code != "ALREADY_OPEN" {
		t.Errorf("Expected 409 ALREADY_OPEN, got %d %+v", w.Code, resp.Error)
	}

	w, resp = s.do(t, http.MethodPost, "/api/v1/session/send", `{"text":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from send, got %d: %s", w.Code, w.Body.String())
	}
	if string(s.host.Port().Written()) != "hi\n" {
		t.Errorf("Expected \"hi\\n\" on the wire, got %q", s.host.Port().Written())
	}

	w, resp = s.do(t, http.MethodPost, "/api/v1/session/upload", `{"payload":"abc"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202 from upload, got %d: %s", w.Code, w.Body.String())
	}
	var job model.UploadJob
	if err := json.Unmarshal(resp.Data, &job); err != nil {
		t.Fatalf("Invalid job payload: %v", err)
	}
	if job.TotalBytes != 3 {
		t.Errorf("Expected 3 total bytes, got %d", job.TotalBytes)
	}

	w, resp = s.do(t, http.MethodPost, "/api/v1/session/upload", `{}`)
	if w.Code != http.StatusBadRequest || resp.Error.Code != "INVALID_REQUEST" {
		t.Errorf("Expected 400 INVALID_REQUEST, got %d %+v", w.Code, resp.Error)
	}

	w, resp = s.do(t, http.MethodPost, "/api/v1/session/upload", `{"sketch":"missing.ino"}`)
	if w.Code != http.StatusNotFound || resp.Error.Code != "SKETCH_NOT_FOUND" {
		t.Errorf("Expected 404 SKETCH_NOT_FOUND, got %d %+v", w.Code, resp.Error)
	}

	w, resp = s.do(t, http.MethodPost, "/api/v1/session/disconnect", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 from disconnect, got %d: %s", w.Code, w.Body.String())
	}

	w, resp = s.do(t, http.MethodGet, "/api/v1/session", "")
	var status session.Status
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		t.Fatalf("Invalid status payload: %v", err)
	}
	if status.Connection.State != model.ConnectionClosed {
		t.Errorf("Expected CLOSED after disconnect, got %s", status.Connection.State)
	}
}

func TestConnectPortUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.host.Unavailable = true

	w, resp := s.do(t, http.MethodPost, "/api/v1/session/connect", `{}`)
	if w.Code != http.StatusNotFound || resp.Error == nil || resp.Error.Code != "PORT_UNAVAILABLE" {
		t.Errorf("Expected 404 PORT_UNAVAILABLE, got %d %s", w.Code, w.Body.String())
	}

	w, resp = s.do(t, http.MethodPost, "/api/v1/session/connect", `{"board":"teensy"}`)
	if w.Code != http.StatusBadRequest || resp.Error.Code != "INVALID_REQUEST" {
		t.Errorf("Expected 400 INVALID_REQUEST, got %d %s", w.Code, w.Body.String())
	}

	w, resp = s.do(t, http.MethodPost, "/api/v1/session/upload/cancel", "")
	if w.Code != http.StatusNotFound || resp.Error.Code != "NO_ACTIVE_UPLOAD" {
		t.Errorf("Expected 404 NO_ACTIVE_UPLOAD, got %d %s", w.Code, w.Body.String())
	}
}

func TestRecordsWithOutOfRangeNumber(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/session/connect", `{}`)

	s.host.Port().Inject([]byte("12\n1e400\n"))
	deadline := time.Now().Add(2 * time.Second)
	var records struct {
		Count   int                   `json:"count"`
		Records []model.InboundRecord `json:"records"`
	}
	for {
		w, resp := s.do(t, http.MethodGet, "/api/v1/session/records", "")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		if err := json.Unmarshal(resp.Data, &records); err != nil {
			t.Fatalf("Invalid records payload: %v", err)
		}
		if records.Count == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for records, have %d", records.Count)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if records.Records[0].NumericValue == nil || *records.Records[0].NumericValue != 12 {
		t.Errorf("Expected 12 to be numeric, got %+v", records.Records[0])
	}
	if records.Records[1].Text != "1e400" || records.Records[1].NumericValue != nil {
		t.Errorf("Expected 1e400 as plain text, got %+v", records.Records[1])
	}
}

func TestSketchEndpoints(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPut, "/api/v1/sketches", `[{"name":"blink.ino","content":"void loop(){}","isOpen":true}]`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from save, got %d: %s", w.Code, w.Body.String())
	}

	w, resp := s.do(t, http.MethodGet, "/api/v1/sketches/blink.ino", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from get, got %d", w.Code)
	}
	var sketch model.Sketch
	if err := json.Unmarshal(resp.Data, &sketch); err != nil || sketch.Content != "void loop(){}" || !sketch.IsOpen {
		t.Errorf("Unexpected sketch %+v, %v", sketch, err)
	}

	w, resp = s.do(t, http.MethodGet, "/api/v1/sketches/other.ino", "")
	if w.Code != http.StatusNotFound || resp.Error.Code != "SKETCH_NOT_FOUND" {
		t.Errorf("Expected 404 SKETCH_NOT_FOUND, got %d %+v", w.Code, resp.Error)
	}

	w, resp = s.do(t, http.MethodPut, "/api/v1/sketches", `[{"name":"a"},{"name":"a"}]`)
	if w.Code != http.StatusBadRequest || resp.Error.Code != "INVALID_SKETCH" {
		t.Errorf("Expected 400 INVALID_SKETCH, got %d %+v", w.Code, resp.Error)
	}

	w, _ = s.do(t, http.MethodPut, "/api/v1/sketches", `{"name":"not a list"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a non-list body, got %d", w.Code)
	}

	// upload by sketch name once connected
	s.do(t, http.MethodPost, "/api/v1/session/connect", `{}`)
	w, _ = s.do(t, http.MethodPost, "/api/v1/session/upload", `{"sketch":"blink.ino"}`)
	if w.Code != http.StatusAccepted {
		t.Errorf("Expected 202 uploading a stored sketch, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBoardsAndPorts(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodGet, "/api/v1/boards", "")
	var boards []model.Board
	if w.Code != http.StatusOK || json.Unmarshal(resp.Data, &boards) != nil || len(boards) == 0 {
		t.Errorf("Expected board catalog, got %d %s", w.Code, w.Body.String())
	}

	w, resp = s.do(t, http.MethodGet, "/api/v1/ports", "")
	var ports struct {
		Count int              `json:"count"`
		Ports []model.PortInfo `json:"ports"`
	}
	if w.Code != http.StatusOK || json.Unmarshal(resp.Data, &ports) != nil || ports.Count != 1 {
		t.Errorf("Expected one port, got %d %s", w.Code, w.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/ready", "/live"} {
		w, _ := s.do(t, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}

	w, _ := s.do(t, http.MethodGet, "/health", "")
	var health struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status string `json:"status"`
		} `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("Invalid health payload: %v", err)
	}
	if health.Status != "healthy" || health.Checks["database"].Status != "disabled" {
		t.Errorf("Unexpected health %+v", health)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/boards", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("Expected request id echoed, got %q", got)
	}
	var resp apiResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.RequestID != "req-123" {
		t.Errorf("Expected request id in body, got %q", resp.RequestID)
	}

	w, _ = s.do(t, http.MethodGet, "/api/v1/boards", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected a generated request id")
	}
}

type wsMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(wsMessage) bool) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("WebSocket read failed: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func TestSessionWebSocket(t *testing.T) {
	s := newTestServer(t)
	server := httptest.NewServer(s.engine)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	readUntil(t, conn, func(m wsMessage) bool { return m.Type == "snapshot" })

	s.do(t, http.MethodPost, "/api/v1/session/connect", `{}`)
	msg := readUntil(t, conn, func(m wsMessage) bool { return m.Type == "session_event" })
	var evt model.SessionEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		t.Fatalf("Invalid session event: %v", err)
	}
	if evt.Type != model.EventStatusChange || evt.Status.To != model.ConnectionOpen {
		t.Errorf("Expected STATUS_CHANGE to OPEN, got %+v", evt)
	}

	s.host.Port().Inject([]byte("42\n"))
	msg = readUntil(t, conn, func(m wsMessage) bool { return m.Type == "session_event" })
	evt = model.SessionEvent{}
	json.Unmarshal(msg.Data, &evt)
	if evt.Record == nil || evt.Record.Text != "42" || evt.Record.NumericValue == nil || *evt.Record.NumericValue != 42 {
		t.Errorf("Expected record 42, got %+v", evt)
	}

	conn.WriteJSON(map[string]any{"type": "send", "data": map[string]string{"text": "ping"}, "request_id": "r1"})
	msg = readUntil(t, conn, func(m wsMessage) bool { return m.RequestID == "r1" })
	if msg.Type != "sent" {
		t.Errorf("Expected sent acknowledgement, got %s", msg.Type)
	}

	conn.WriteJSON(map[string]any{"type": "ping", "request_id": "r2"})
	if msg = readUntil(t, conn, func(m wsMessage) bool { return m.RequestID == "r2" }); msg.Type != "pong" {
		t.Errorf("Expected pong, got %s", msg.Type)
	}

	conn.WriteJSON(map[string]any{"type": "reboot", "request_id": "r3"})
	msg = readUntil(t, conn, func(m wsMessage) bool { return m.RequestID == "r3" })
	var apiErr struct {
		Code string `json:"code"`
	}
	json.Unmarshal(msg.Data, &apiErr)
	if msg.Type != "error" || apiErr.Code != "INVALID_REQUEST" {
		t.Errorf("Expected INVALID_REQUEST error, got %s %s", msg.Type, msg.Data)
	}

	conn.WriteJSON(map[string]any{"type": "cancel_upload", "request_id": "r4"})
	msg = readUntil(t, conn, func(m wsMessage) bool { return m.RequestID == "r4" })
	json.Unmarshal(msg.Data, &apiErr)
	if msg.Type != "error" || apiErr.Code != "NO_ACTIVE_UPLOAD" {
		t.Errorf("Expected NO_ACTIVE_UPLOAD error, got %s %s", msg.Type, msg.Data)
	}

	if s.router.wsHandler.ClientCount() != 1 {
		t.Errorf("Expected 1 WebSocket client, got %d", s.router.wsHandler.ClientCount())
	}
}
