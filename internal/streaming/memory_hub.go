package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuffer is the per-subscriber channel depth. A follower that keeps
// up never sees drops; one that stalls loses events rather than stalling
// the run.
const DefaultBuffer = 64

// subscription is one subscriber's channel plus its filter. Delivery stops
// permanently once cancelled.
type subscription struct {
	id     uint64
	ch     chan StreamEvent
	filter EventFilter
}

// wants reports whether the subscription's filter admits the event.
func (s *subscription) wants(ev StreamEvent) bool {
	if s.filter.RunID != "" && s.filter.RunID != ev.RunID {
		return false
	}
	if len(s.filter.EventTypes) == 0 {
		return true
	}
	for _, t := range s.filter.EventTypes {
		if t == ev.EventType {
			return true
		}
	}
	return false
}

// MemoryHub is the in-process EventHub. Publish never blocks: a subscriber
// whose buffer is full misses the event, and the hub counts the drop.
type MemoryHub struct {
	buffer int

	mu   sync.RWMutex
	subs map[uint64]*subscription

	nextID  atomic.Uint64
	dropped atomic.Uint64
}

// NewMemoryHub creates a hub. A non-positive buffer falls back to
// DefaultBuffer.
func NewMemoryHub(buffer int) *MemoryHub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &MemoryHub{
		buffer: buffer,
		subs:   make(map[uint64]*subscription),
	}
}

// Publish delivers an event to every matching subscriber. The event's
// Timestamp is stamped here when the publisher left it unset.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a filtered subscriber. The returned cancel function
// unsubscribes and closes the channel; buffered events stay readable until
// drained. Cancel is idempotent.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sub := &subscription{
		id:     h.nextID.Add(1),
		ch:     make(chan StreamEvent, h.buffer),
		filter: filter,
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub.id)
			h.mu.Unlock()
			// No publisher can hold the channel past this point: Publish
			// sends under the read lock the delete just excluded.
			close(sub.ch)
		})
	}

	return sub.ch, cancel, nil
}

// SubscriberCount reports the number of live subscriptions.
func (h *MemoryHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// DroppedEvents reports how many events were discarded because a
// subscriber's buffer was full.
func (h *MemoryHub) DroppedEvents() uint64 {
	return h.dropped.Load()
}

var _ EventHub = (*MemoryHub)(nil)
