// Package eventbus provides an append-only ring buffer of change events with
// fan-out to live subscribers and catch-up replay for reconnects.
package eventbus

import (
	"log"
	"sync"
	"time"

	"mintwatch/internal/observability"
)

// DefaultBufferSize is the ring buffer capacity.
const DefaultBufferSize = 1000

// subscriberChanSize is the per-subscriber delivery buffer. A subscriber that
// falls this far behind is dropped rather than blocking the publisher.
const subscriberChanSize = 256

// Event is one immutable change event. ID is unique and ordered by arrival.
type Event struct {
	ID        string `json:"id"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"` // unix seconds at append
}

// Bus is the event bus. All methods are safe for concurrent use.
type Bus struct {
	mu      sync.Mutex
	buf     []Event // ring storage, len == capacity
	head    int     // index of oldest event
	count   int
	subs    map[*Subscription]struct{}
	logger  *log.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Subscription is one registered subscriber. Events are received from C;
// Close unregisters. The channel is closed by the bus when the subscriber is
// dropped for falling behind.
type Subscription struct {
	C    <-chan Event
	ch   chan Event
	bus  *Bus
	once sync.Once
}

// New creates a bus with the given buffer capacity (DefaultBufferSize if <= 0).
func New(capacity int, logger *log.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{
		buf:     make([]Event, capacity),
		subs:    make(map[*Subscription]struct{}),
		logger:  logger,
		metrics: observability.DefaultMetrics,
		now:     time.Now,
	}
}

// Publish appends an event to the ring buffer, evicting the oldest on
// overflow, and delivers it to every live subscriber. A subscriber whose
// delivery buffer is full is silently unregistered.
func (b *Bus) Publish(id string, data any) Event {
	b.mu.Lock()
	evt := Event{ID: id, Data: data, Timestamp: b.now().Unix()}
	if b.count < len(b.buf) {
		b.buf[(b.head+b.count)%len(b.buf)] = evt
		b.count++
	} else {
		b.buf[b.head] = evt
		b.head = (b.head + 1) % len(b.buf)
	}

	var dropped []*Subscription
	for sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		delete(b.subs, sub)
		close(sub.ch)
	}
	b.mu.Unlock()

	if len(dropped) > 0 {
		b.metrics.SlowSubscribers.Add(float64(len(dropped)))
		b.logger.Printf("eventbus: dropped %d slow subscriber(s)", len(dropped))
	}
	return evt
}

// Subscribe registers a new subscriber. When lastSeenID matches a buffered
// event, every buffered event strictly after it is queued for delivery before
// live events; otherwise only new events are delivered.
func (b *Bus) Subscribe(lastSeenID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	replay := b.replayLocked(lastSeenID)
	sub := &Subscription{
		ch:  make(chan Event, len(replay)+subscriberChanSize),
		bus: b,
	}
	sub.C = sub.ch
	for _, evt := range replay {
		sub.ch <- evt
	}
	b.subs[sub] = struct{}{}
	return sub
}

// replayLocked returns the buffered events strictly after lastSeenID, in
// arrival order, or nil when the id is unknown or already the newest.
func (b *Bus) replayLocked(lastSeenID string) []Event {
	if lastSeenID == "" {
		return nil
	}
	for i := 0; i < b.count; i++ {
		if b.buf[(b.head+i)%len(b.buf)].ID != lastSeenID {
			continue
		}
		var out []Event
		for j := i + 1; j < b.count; j++ {
			out = append(out, b.buf[(b.head+j)%len(b.buf)])
		}
		return out
	}
	return nil
}

// Close unregisters the subscription. Safe to call more than once and safe to
// race with the bus dropping the subscriber.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if _, ok := s.bus.subs[s]; ok {
			delete(s.bus.subs, s)
			close(s.ch)
		}
		s.bus.mu.Unlock()
	})
}

// BufferLen returns the number of buffered events.
func (b *Bus) BufferLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Subscribers returns the number of live subscribers.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// SetNowFunc overrides the clock, for tests.
func (b *Bus) SetNowFunc(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}
