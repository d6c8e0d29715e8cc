package session

import (
	"testing"

	"serial-bridge/internal/model"
)

func TestSubscribersOrder(t *testing.T) {
	var list subscriberList
	var calls []string

	list.add(func(model.SessionEvent) { calls = append(calls, "first") })
	list.add(func(model.SessionEvent) { calls = append(calls, "second") })
	list.add(func(model.SessionEvent) { calls = append(calls, "third") })

	list.emit(model.SessionEvent{Type: model.EventOutbound})

	want := []string{"first", "second", "third"}
	if len(calls) != len(want) {
		t.Fatalf("Expected %d calls, got %d", len(want), len(calls))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("Call %d: expected %s, got %s", i, want[i], calls[i])
		}
	}
}

func TestSubscribersUnsubscribeDuringEmit(t *testing.T) {
	var list subscriberList
	counts := map[string]int{}

	var second SubscriptionID
	list.add(func(model.SessionEvent) {
		counts["first"]++
		list.remove(second)
	})
	second = list.add(func(model.SessionEvent) { counts["second"]++ })

	list.emit(model.SessionEvent{})
	list.emit(model.SessionEvent{})

	if counts["first"] != 2 {
		t.Errorf("Expected first handler called twice, got %d", counts["first"])
	}
	// removal takes effect from the next event
	if counts["second"] != 1 {
		t.Errorf("Expected second handler called once, got %d", counts["second"])
	}
	if list.len() != 1 {
		t.Errorf("Expected 1 subscriber, got %d", list.len())
	}
	if list.remove(second) {
		t.Error("Expected removing an unknown id to report false")
	}
}
