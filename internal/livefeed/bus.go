// Package livefeed implements spec.md §4.5: two polling loops over the Call
// table that emit newCall/liveFeedUpdate events to subscribers, and an
// in-process pub-sub bus an SSE handler can fan out from.
package livefeed

import "sync"

// EventType names the two event kinds spec.md §4.5 defines.
type EventType string

const (
	EventNewCall         EventType = "newCall"
	EventLiveFeedUpdate  EventType = "liveFeedUpdate"
)

// Event is a single fan-out message. Call is a *database.Call but kept as
// `any` here so this package doesn't import database just to shuttle a
// pointer through — the SSE handler that serialises it already imports
// database directly.
type Event struct {
	Type EventType
	Call any
}

// Bus is a simple multi-subscriber broadcast channel. Each subscriber gets
// its own buffered channel; a slow subscriber that fills its buffer has
// events dropped for it rather than blocking the publisher.
type Bus struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a new listener. Callers must call the returned
// cancel func when done to avoid leaking the channel and map entry.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish broadcasts ev to every current subscriber, non-blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports the current listener count, used to back
// metrics.IngestStats.SSESubscriberCount.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
