package discovery

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"serial-bridge/internal/model"
)

type fakeScanner struct {
	kind      string
	available bool
	ports     []model.PortInfo
	err       error
}

func (s *fakeScanner) Scan(ctx context.Context) ([]model.PortInfo, error) {
	return s.ports, s.err
}

func (s *fakeScanner) GetScannerType() string { return s.kind }
func (s *fakeScanner) IsAvailable() bool      { return s.available }

func TestScanAllAnnotatesAndSorts(t *testing.T) {
	sm := NewScannerManager(zaptest.NewLogger(t))
	sm.RegisterScanner(&fakeScanner{kind: "serial", available: true, ports: []model.PortInfo{
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1A86", PID: "7523"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043"},
		{Name: "/dev/ttyS0"},
	}})
	sm.RegisterScanner(&fakeScanner{kind: "other", available: true, err: errors.New("boom")})
	sm.RegisterScanner(&fakeScanner{kind: "off", available: false, ports: []model.PortInfo{{Name: "/dev/never"}}})

	ports, err := sm.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}
	if len(ports) != 3 {
		t.Fatalf("Expected 3 ports, got %d", len(ports))
	}

	wantNames := []string{"/dev/ttyACM0", "/dev/ttyS0", "/dev/ttyUSB0"}
	for i, name := range wantNames {
		if ports[i].Name != name {
			t.Errorf("Port %d: expected %s, got %s", i, name, ports[i].Name)
		}
	}
	if ports[0].Board == nil || ports[0].Board.ID != "uno" {
		t.Errorf("Expected uno on ttyACM0, got %+v", ports[0].Board)
	}
	if ports[1].Board != nil {
		t.Errorf("Expected no board on ttyS0, got %+v", ports[1].Board)
	}
	if ports[2].Board == nil || ports[2].Board.ID != "nano" {
		t.Errorf("Expected nano on ttyUSB0, got %+v", ports[2].Board)
	}
}

func TestScanAllFailsWhenEveryScannerFails(t *testing.T) {
	sm := NewScannerManager(zaptest.NewLogger(t))
	scanErr := errors.New("enumeration failed")
	sm.RegisterScanner(&fakeScanner{kind: "serial", available: true, err: scanErr})

	if _, err := sm.ScanAll(context.Background()); !errors.Is(err, scanErr) {
		t.Errorf("Expected scan error, got %v", err)
	}
}

func TestScanAllNoScanners(t *testing.T) {
	sm := NewScannerManager(zaptest.NewLogger(t))
	ports, err := sm.ScanAll(context.Background())
	if err != nil || ports == nil || len(ports) != 0 {
		t.Errorf("Expected empty list, got %v, %v", ports, err)
	}
}

func TestGetAvailableScanners(t *testing.T) {
	sm := NewScannerManager(zaptest.NewLogger(t))
	sm.RegisterScanner(&fakeScanner{kind: "serial", available: true})
	sm.RegisterScanner(&fakeScanner{kind: "bluetooth", available: false})

	got := sm.GetAvailableScanners()
	if len(got) != 1 || got[0] != "serial" {
		t.Errorf("Expected [serial], got %v", got)
	}
}
