// Package events delivers fire-and-forget pipeline notifications to subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/your-org/decision-pipeline/internal/metrics"
)

// Kind names a notification.
type Kind string

const (
	KindDecisionQueued Kind = "decision_queued"
	KindBackpressure   Kind = "backpressure"
	KindMetrics        Kind = "metrics"
	KindDeadLettered   Kind = "dead_lettered"
	KindHealthIssue    Kind = "health_issue"
)

// Event is one notification. Fields not relevant to Kind are zero.
type Event struct {
	Kind       Kind              `json:"kind"`
	At         time.Time         `json:"at"`
	DecisionID string            `json:"decisionId,omitempty"`
	QueueDepth int               `json:"queueDepth"`
	Metrics    *metrics.Snapshot `json:"metrics,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Hub fans events out to subscribers without blocking the publisher.
// A subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	closed  bool
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a func that unsubscribes and closes it.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	ch := newBufferedChannel[Event](buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped counts deliveries skipped because a subscriber was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close closes every subscriber channel. Later publishes are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// newBufferedChannel allocates a buffered channel with at least size 1.
func newBufferedChannel[T any](size int) chan T {
	if size <= 0 {
		size = 1
	}
	return make(chan T, size)
}
