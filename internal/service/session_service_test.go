package service

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"serial-bridge/internal/model"
	"serial-bridge/internal/protocol"
	"serial-bridge/internal/protocol/protocoltest"
	"serial-bridge/internal/repository"
	"serial-bridge/internal/session"
	"serial-bridge/internal/upload"
)

func newTestSessionService(t *testing.T, sketches ...model.Sketch) (*SessionService, *protocoltest.FakeHost) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	host := protocoltest.NewFakeHost()
	manager := session.NewManager(host, session.Options{
		Defaults: protocol.SerialConfig{BaudRate: 9600},
		Upload: upload.Options{
			ChunkSize: 64,
			Sleep:     func(ctx context.Context, d time.Duration) error { return ctx.Err() },
		},
	}, logger)
	t.Cleanup(func() { manager.Disconnect(context.Background()) })
	return NewSessionService(manager, repository.NewMemorySketchRepository(sketches...), logger), host
}

func TestConnectResolvesBoardBaudRate(t *testing.T) {
	tests := []struct {
		name     string
		req      ConnectRequest
		wantBaud int
	}{
		{"board default", ConnectRequest{Board: "esp32"}, 115200},
		{"explicit baud wins", ConnectRequest{Board: "esp32", BaudRate: 57600}, 57600},
		{"manager default", ConnectRequest{}, 9600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, host := newTestSessionService(t)
			conn, err := svc.Connect(context.Background(), &tt.req)
			if err != nil {
				t.Fatalf("Connect failed: %v", err)
			}
			if conn.BaudRate != tt.wantBaud || host.Port().BaudRate != tt.wantBaud {
				t.Errorf("Expected baud %d, got %d (port %d)", tt.wantBaud, conn.BaudRate, host.Port().BaudRate)
			}
		})
	}
}

func TestConnectRejectsInvalidRequests(t *testing.T) {
	svc, host := newTestSessionService(t)

	for _, req := range []ConnectRequest{{Board: "teensy"}, {BaudRate: -1}} {
		if _, err := svc.Connect(context.Background(), &req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
	if host.Requests != 0 {
		t.Errorf("Expected no port requests, got %d", host.Requests)
	}
}

func TestUploadPayloadSources(t *testing.T) {
	sketch := model.Sketch{Name: "blink.ino", Content: "void loop() {}"}

	tests := []struct {
		name    string
		req     UploadRequest
		want    string
		wantErr error
	}{
		{"sketch", UploadRequest{Sketch: "blink.ino"}, sketch.Content, nil},
		{"raw payload", UploadRequest{Payload: "raw"}, "raw", nil},
		{"base64 payload", UploadRequest{PayloadBase64: base64.StdEncoding.EncodeToString([]byte{1, 2, 3})}, "\x01\x02\x03", nil},
		{"no source", UploadRequest{}, "", ErrInvalidRequest},
		{"two sources", UploadRequest{Sketch: "blink.ino", Payload: "raw"}, "", ErrInvalidRequest},
		{"bad base64", UploadRequest{PayloadBase64: "***"}, "", ErrInvalidRequest},
		{"unknown sketch", UploadRequest{Sketch: "missing.ino"}, "", repository.ErrSketchNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, host := newTestSessionService(t, sketch)
			if _, err := svc.Connect(context.Background(), &ConnectRequest{}); err != nil {
				t.Fatalf("Connect failed: %v", err)
			}

			job, err := svc.Upload(context.Background(), &tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Upload failed: %v", err)
			}
			if job.TotalBytes != len(tt.want) {
				t.Errorf("Expected %d total bytes, got %d", len(tt.want), job.TotalBytes)
			}

			deadline := time.Now().Add(2 * time.Second)
			for !svc.Status().Upload.State.IsTerminal() {
				if time.Now().After(deadline) {
					t.Fatal("Timed out waiting for upload")
				}
				time.Sleep(5 * time.Millisecond)
			}
			if got := string(host.Port().Written()); got != tt.want {
				t.Errorf("Expected %q written, got %q", tt.want, got)
			}
		})
	}
}

func TestCancelUploadWithoutJob(t *testing.T) {
	svc, _ := newTestSessionService(t)
	if _, err := svc.CancelUpload(); !errors.Is(err, session.ErrNoActiveUpload) {
		t.Errorf("Expected ErrNoActiveUpload, got %v", err)
	}
}
