// internal/session/subscribers.go
package session

import (
	"sync"

	"serial-bridge/internal/model"
)

// Handler receives session events. Handlers may be called from the read
// loop, an upload job or the caller of a session operation, so they must
// be safe for concurrent use and should not block.
type Handler func(model.SessionEvent)

// SubscriptionID identifies a registered handler
type SubscriptionID uint64

type subscriber struct {
	id      SubscriptionID
	handler Handler
}

// subscriberList keeps handlers in subscription order
type subscriberList struct {
	mutex  sync.RWMutex
	nextID SubscriptionID
	subs   []subscriber
}

func (l *subscriberList) add(h Handler) SubscriptionID {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.nextID++
	l.subs = append(l.subs, subscriber{id: l.nextID, handler: h})
	return l.nextID
}

func (l *subscriberList) remove(id SubscriptionID) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	for i, s := range l.subs {
		if s.id == id {
			// Copy so snapshots held by in-flight emissions stay intact
			next := make([]subscriber, 0, len(l.subs)-1)
			next = append(next, l.subs[:i]...)
			l.subs = append(next, l.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (l *subscriberList) snapshot() []subscriber {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.subs
}

func (l *subscriberList) len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.subs)
}

func (l *subscriberList) emit(evt model.SessionEvent) {
	for _, s := range l.snapshot() {
		s.handler(evt)
	}
}
