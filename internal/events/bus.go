// Package events provides the in-process pub-sub channel for plan-status,
// step-completed, and final-answer notifications.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// subscriberBuffer bounds each subscriber channel. Slow subscribers drop
// the oldest event rather than block the runner.
const subscriberBuffer = 64

// Bus fans orchestration events out to subscribers. Safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	subs     map[int]chan models.OrchestrationEvent
	sequence atomic.Uint64
	closed   bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan models.OrchestrationEvent)}
}

// Subscribe registers a consumer and returns its channel plus a cancel
// func. The channel is closed on cancel or bus Close.
func (b *Bus) Subscribe() (<-chan models.OrchestrationEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.OrchestrationEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish stamps the event with time and sequence and delivers it to every
// subscriber. Full subscriber buffers drop the oldest event first.
func (b *Bus) Publish(event models.OrchestrationEvent) {
	event.Time = time.Now()
	event.Sequence = b.sequence.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
