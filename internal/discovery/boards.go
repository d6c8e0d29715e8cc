// internal/discovery/boards.go
package discovery

import (
	"fmt"
	"strings"

	"serial-bridge/internal/model"
)

// Boards offered by the editor. USB ids are VID:PID in upper-case hex.
var boards = []model.Board{
	{
		ID:              "uno",
		Name:            "Arduino Uno",
		FQBN:            "arduino:avr:uno",
		DefaultBaudRate: 9600,
		USBIDs:          []string{"2341:0043", "2341:0001", "2A03:0043", "2341:0243"},
	},
	{
		ID:              "esp32",
		Name:            "ESP32 Dev Module",
		FQBN:            "esp32:esp32:esp32",
		DefaultBaudRate: 115200,
		USBIDs:          []string{"10C4:EA60", "1A86:55D4"},
	},
	{
		ID:              "nano",
		Name:            "Arduino Nano",
		FQBN:            "arduino:avr:nano",
		DefaultBaudRate: 9600,
		USBIDs:          []string{"1A86:7523", "0403:6001"},
	},
	{
		ID:              "mega",
		Name:            "Arduino Mega 2560",
		FQBN:            "arduino:avr:mega",
		DefaultBaudRate: 9600,
		USBIDs:          []string{"2341:0042", "2341:0010", "2A03:0042"},
	},
}

// Boards returns the board catalog
func Boards() []model.Board {
	out := make([]model.Board, len(boards))
	for i, b := range boards {
		out[i] = cloneBoard(b)
	}
	return out
}

// LookupBoard finds a board by its id, case-insensitively
func LookupBoard(id string) (*model.Board, error) {
	for _, b := range boards {
		if strings.EqualFold(b.ID, id) {
			found := cloneBoard(b)
			return &found, nil
		}
	}
	return nil, fmt.Errorf("unknown board: %s", id)
}

// MatchUSB returns the first board known to use the given VID/PID pair.
// Several boards share USB bridges, so the match is a best guess.
func MatchUSB(vid, pid string) *model.Board {
	if vid == "" || pid == "" {
		return nil
	}
	key := strings.ToUpper(vid) + ":" + strings.ToUpper(pid)
	for _, b := range boards {
		for _, id := range b.USBIDs {
			if id == key {
				found := cloneBoard(b)
				return &found
			}
		}
	}
	return nil
}

func cloneBoard(b model.Board) model.Board {
	b.USBIDs = append([]string(nil), b.USBIDs...)
	return b
}
