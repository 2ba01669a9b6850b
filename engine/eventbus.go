package engine

import (
	"sort"
	"sync"
	"time"
)

// SubscriberID identifies a registration on the EventBus. IDs are handed
// out in increasing order and double as the dispatch order, so a listener
// registered earlier always observes an event before a later one.
type SubscriberID uint64

// SubscriberFunc receives dispatched events on the emitting goroutine.
type SubscriberFunc func(Event)

type subscription struct {
	fn    SubscriberFunc
	types map[EventType]struct{} // nil means every type
}

func (s *subscription) wants(t EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// EventBus is the engine's synchronous dispatch fabric: device discovery,
// reservations and stats sampling all publish through it, and the web,
// telemetry and fleet layers hang their listeners off it. Delivery happens
// inline on the publisher's goroutine; handlers that block stall the
// engine's loops, so anything slow belongs behind a channel or the outbox.
type EventBus struct {
	mu   sync.RWMutex
	seq  SubscriberID
	subs map[SubscriberID]*subscription
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[SubscriberID]*subscription)}
}

func (eb *EventBus) register(sub *subscription) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.seq++
	eb.subs[eb.seq] = sub
	return eb.seq
}

// Subscribe registers a listener for every event type.
func (eb *EventBus) Subscribe(fn SubscriberFunc) SubscriberID {
	return eb.register(&subscription{fn: fn})
}

// SubscribeTypes registers a listener for the given event types only.
func (eb *EventBus) SubscribeTypes(fn SubscriberFunc, types ...EventType) SubscriberID {
	wanted := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}
	return eb.register(&subscription{fn: fn, types: wanted})
}

// Unsubscribe drops a registration. Unknown IDs are ignored.
func (eb *EventBus) Unsubscribe(id SubscriberID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	delete(eb.subs, id)
}

// Publish stamps and dispatches an event built from a type and payload.
// It is the common emit path for the engine's own components.
func (eb *EventBus) Publish(t EventType, payload interface{}) {
	eb.Emit(Event{Type: t, Payload: payload})
}

// Emit dispatches an event to every matching listener, in registration
// order, on the calling goroutine. An unset timestamp is stamped with now.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	type target struct {
		id SubscriberID
		fn SubscriberFunc
	}
	eb.mu.RLock()
	matched := make([]target, 0, len(eb.subs))
	for id, sub := range eb.subs {
		if sub.wants(evt.Type) {
			matched = append(matched, target{id: id, fn: sub.fn})
		}
	}
	eb.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].id < matched[j].id })
	for _, m := range matched {
		m.fn(evt)
	}
}
