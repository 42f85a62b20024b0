// Package bus provides the process-wide publish/subscribe channel that
// decouples the bot core from its UI consumers.
//
// The event-name set is fixed and enumerated; subscribers receive events in
// publish order. Publishing never blocks the producer: a subscriber whose
// buffer is full has events dropped, with drops counted for diagnostics.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// ///////////////////////////////////////////////
// Event Types
// ///////////////////////////////////////////////

// EventType identifies one of the fixed bus event kinds.
type EventType string

const (
	// EventLog carries a single game log entry.
	EventLog EventType = "log"
	// EventStatusUpdate carries a connection/user status snapshot.
	EventStatusUpdate EventType = "status-update"
	// EventStatsUpdate carries the current day-scoped statistics.
	EventStatsUpdate EventType = "stats-update"
	// EventNotificationsUpdated signals that the notification list changed.
	EventNotificationsUpdated EventType = "notifications-updated"
)

// Event is a typed bus message. Payload is the event-specific data; it is
// nil for pure signals such as [EventNotificationsUpdated].
type Event struct {
	Type    EventType
	Payload any
}

// ///////////////////////////////////////////////
// Bus
// ///////////////////////////////////////////////

const subscriberBuffer = 256

// Bus fans events out to any number of subscribers.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	dropped atomic.Int64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its receive channel plus
// a cancel function. Cancel is idempotent and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every current subscriber without blocking. Events
// for a saturated subscriber are dropped and counted.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			n := b.dropped.Add(1)
			// Avoid log spam: report the first drop and then every 1000.
			if n == 1 || n%1000 == 0 {
				slog.Debug("bus dropped events (subscriber buffer full)",
					"dropped", n, "event_type", string(ev.Type))
			}
		}
	}
}

// Dropped returns the number of events dropped due to slow subscribers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
