// Package events carries the daemon's observation stream: queue changes,
// breaker transitions, heartbeat state, template and schedule activity. The
// bus fans events out to in-process subscribers; the journal persists them.
package events

import (
	"sync"
	"time"
)

// EventType names one kind of daemon observation.
type EventType string

const (
	// EventQueueChanged is published when envelopes move between queue states.
	EventQueueChanged EventType = "queue_changed"
	// EventLogLines is published when the tailer reads new worker log lines.
	EventLogLines EventType = "log_lines"
	// EventBreakerChanged is published when a circuit breaker changes state.
	EventBreakerChanged EventType = "breaker_changed"
	// EventWorkerAlive is published when a stale heartbeat becomes fresh.
	EventWorkerAlive EventType = "worker_alive"
	// EventWorkerStale is published when the heartbeat goes stale.
	EventWorkerStale EventType = "worker_stale"
	// EventTemplatesChanged is published when the template catalog changes.
	EventTemplatesChanged EventType = "templates_changed"
	// EventScheduleFired is published when a recurring schedule enqueues a task.
	EventScheduleFired EventType = "schedule_fired"
)

// Event is one observation with its payload.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscriber receives events for one subscribed type.
type Subscriber func(Event)

// Bus fans events out to per-subscriber buffered channels. Delivery is
// asynchronous and lossy: a subscriber that cannot keep up loses events
// rather than stalling the publisher.
type Bus struct {
	mu         sync.RWMutex
	subs       map[EventType][]chan Event
	bufferSize int
}

// NewBus returns a bus with the given per-subscriber buffer size. Sizes <= 0
// fall back to 100.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subs:       make(map[EventType][]chan Event),
		bufferSize: bufferSize,
	}
}

// Subscribe registers fn for one event type and returns its unsubscribe
// function. fn runs on a dedicated goroutine per subscription, so a slow
// subscriber only ever drops its own events.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subs[eventType] = append(b.subs[eventType], ch)

	go deliver(ch, fn)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[eventType]
		for i, c := range subs {
			if c == ch {
				b.subs[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

func deliver(ch <-chan Event, fn Subscriber) {
	for e := range ch {
		invoke(fn, e)
	}
}

// invoke isolates one delivery so a panicking subscriber cannot kill the
// delivery goroutine mid-stream.
func invoke(fn Subscriber, e Event) {
	defer func() { _ = recover() }()
	fn(e)
}

// Publish stamps data with the current time and offers the event to every
// subscriber of the type. A full subscriber buffer drops the event.
func (b *Bus) Publish(eventType EventType, data map[string]interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data}
	for _, ch := range b.subs[eventType] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close shuts every subscriber channel and forgets all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for t, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, t)
	}
}
