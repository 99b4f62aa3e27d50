package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event is an in-memory signal used to decouple the task side of the bot
// from the recurrence engine.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST drain their channel promptly; slow subscribers may
//     drop events (bounded backpressure).
//   - CorrelationID is propagated into any event emitted while handling
//     this one.
//
// Delivery is at-least-once from the consumer's point of view: handlers must
// stay idempotent.
type Event struct {
	Topic         string
	Time          time.Time
	CorrelationID string
	Data          any
}

type Bus interface {
	Publish(e Event)
	// Subscribe returns a channel receiving events whose topic is in topics
	// (every event when topics is empty) and a func to unsubscribe.
	Subscribe(buffer int, topics ...string) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus. It owns no background
// goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

type subscriber struct {
	ch     chan Event
	topics map[string]bool // nil means all topics
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.CorrelationID == "" {
		e.CorrelationID = uuid.NewString()
	}

	// Snapshot subscribers so Publish doesn't hold the lock while sending.
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.topics == nil || sub.topics[e.Topic] {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		// Non-blocking delivery; a concurrent unsubscribe may close the
		// channel, so recover from the send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case sub.ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int, topics ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	if len(topics) > 0 {
		sub.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}

	id := b.seq.Add(1)
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(sub.ch)
		})
	}
	return sub.ch, unsub
}
