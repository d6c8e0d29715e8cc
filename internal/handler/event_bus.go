// internal/handler/event_bus.go
package handler

import (
	"sync"

	"go.uber.org/zap"

	"serial-bridge/internal/model"
)

// EventBus moves session events off the serial read goroutine. Publish
// never blocks; when the queue is full the event is dropped and counted.
type EventBus struct {
	events      chan model.SessionEvent
	subscribers []chan model.SessionEvent
	mutex       sync.RWMutex
	dropped     uint64
	stopOnce    sync.Once
	done        chan struct{}
	logger      *zap.Logger
}

// NewEventBus creates an event bus with the given queue size
func NewEventBus(size int, logger *zap.Logger) *EventBus {
	if size <= 0 {
		size = 1024
	}
	return &EventBus{
		events: make(chan model.SessionEvent, size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start distributes queued events until Stop is called
func (eb *EventBus) Start() {
	for {
		select {
		case evt := <-eb.events:
			eb.distribute(evt)
		case <-eb.done:
			eb.mutex.Lock()
			for _, sub := range eb.subscribers {
				close(sub)
			}
			eb.subscribers = nil
			eb.mutex.Unlock()
			return
		}
	}
}

// Stop ends distribution and closes subscriber channels
func (eb *EventBus) Stop() {
	eb.stopOnce.Do(func() { close(eb.done) })
}

// Publish queues an event for distribution
func (eb *EventBus) Publish(evt model.SessionEvent) {
	select {
	case <-eb.done:
		return
	default:
	}

	select {
	case eb.events <- evt:
	default:
		eb.mutex.Lock()
		eb.dropped++
		dropped := eb.dropped
		eb.mutex.Unlock()
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(evt.Type)),
			zap.Uint64("dropped_total", dropped),
		)
	}
}

// Subscribe returns a channel receiving every distributed event
func (eb *EventBus) Subscribe(buffer int) <-chan model.SessionEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	sub := make(chan model.SessionEvent, buffer)
	eb.subscribers = append(eb.subscribers, sub)
	return sub
}

// Dropped returns how many events were discarded because the queue was full
func (eb *EventBus) Dropped() uint64 {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return eb.dropped
}

func (eb *EventBus) distribute(evt model.SessionEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, sub := range eb.subscribers {
		select {
		case sub <- evt:
		case <-eb.done:
			return
		}
	}
}
