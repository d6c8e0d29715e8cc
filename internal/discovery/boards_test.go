package discovery

import (
	"testing"
)

func TestLookupBoard(t *testing.T) {
	tests := []struct {
		id       string
		wantBaud int
		wantErr  bool
	}{
		{"uno", 9600, false},
		{"ESP32", 115200, false},
		{"mega", 9600, false},
		{"teensy", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			board, err := LookupBoard(tt.id)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %s", tt.id)
				}
				return
			}
			if err != nil {
				t.Fatalf("LookupBoard failed: %v", err)
			}
			if board.DefaultBaudRate != tt.wantBaud {
				t.Errorf("Expected baud %d, got %d", tt.wantBaud, board.DefaultBaudRate)
			}
		})
	}
}

func TestMatchUSB(t *testing.T) {
	if b := MatchUSB("2341", "0043"); b == nil || b.ID != "uno" {
		t.Errorf("Expected uno, got %+v", b)
	}
	if b := MatchUSB("10c4", "ea60"); b == nil || b.ID != "esp32" {
		t.Errorf("Expected case-insensitive match for esp32, got %+v", b)
	}
	if b := MatchUSB("FFFF", "0001"); b != nil {
		t.Errorf("Expected no match, got %+v", b)
	}
	if b := MatchUSB("", ""); b != nil {
		t.Errorf("Expected no match for empty ids, got %+v", b)
	}
}

func TestBoardsReturnsCopies(t *testing.T) {
	list := Boards()
	list[0].USBIDs[0] = "0000:0000"
	list[0].Name = "changed"

	again := Boards()
	if again[0].Name == "changed" || again[0].USBIDs[0] == "0000:0000" {
		t.Error("Expected catalog to be unaffected by caller changes")
	}
}
