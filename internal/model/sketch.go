// internal/model/sketch.go
package model

// Sketch is one editor file as persisted by the editor
type Sketch struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	IsOpen  bool   `json:"isOpen"`
}

// Board describes a target board offered by the editor
type Board struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	FQBN            string   `json:"fqbn"`
	DefaultBaudRate int      `json:"default_baud_rate"`
	USBIDs          []string `json:"usb_ids,omitempty"` // VID:PID, upper-case hex
}

// PortInfo describes a serial port available on the host
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
	Board        *Board `json:"board,omitempty"`
}
