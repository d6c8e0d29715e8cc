package session

import (
	"fmt"
	"testing"

	"serial-bridge/internal/model"
)

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(model.InboundRecord{Kind: model.RecordLine, Text: fmt.Sprint(i)})
	}

	records := h.Records()
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"2", "3", "4"} {
		if records[i].Text != want {
			t.Errorf("Record %d: expected %s, got %s", i, want, records[i].Text)
		}
	}
	if h.Len() != 3 || h.Cap() != 3 {
		t.Errorf("Expected len 3 cap 3, got %d %d", h.Len(), h.Cap())
	}
}

func TestHistoryClear(t *testing.T) {
	h := NewHistory(2)
	h.Add(model.InboundRecord{Text: "a"})
	h.Clear()
	if h.Len() != 0 || len(h.Records()) != 0 {
		t.Errorf("Expected empty history after Clear")
	}

	h.Add(model.InboundRecord{Text: "b"})
	if records := h.Records(); len(records) != 1 || records[0].Text != "b" {
		t.Errorf("Expected [b], got %+v", records)
	}
}

func TestHistoryDefaultSize(t *testing.T) {
	if h := NewHistory(0); h.Cap() != DefaultHistorySize {
		t.Errorf("Expected default capacity %d, got %d", DefaultHistorySize, h.Cap())
	}
}
