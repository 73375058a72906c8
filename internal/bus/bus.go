package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe event bus with prefix filtering.
// Delivery to a subscriber is non-blocking: a full subscriber channel drops
// the event rather than stalling the publisher.
type Bus struct {
	mu   sync.Mutex
	subs map[int]*subscription
	next int
	seq  uint64
}

type subscription struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Publish assigns the event a sequence number and timestamp, then fans it out
// to every subscriber whose prefix matches evt.Kind. Returns the assigned
// sequence number.
func (b *Bus) Publish(evt Event) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	evt.Seq = b.seq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
				// Subscriber is full; drop rather than block.
			}
		}
	}
	return evt.Seq
}

// Subscribe registers a channel receiving events whose kind starts with
// prefix. bufSize controls the channel buffer. The returned function
// unsubscribes; it is safe to call more than once.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
