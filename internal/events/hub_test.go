package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToAllSubscribers(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe(4)
	b, cancelB := h.Subscribe(4)
	defer cancelA()
	defer cancelB()

	h.Publish(Event{Kind: KindBackpressure, QueueDepth: 9})

	for _, ch := range []<-chan Event{a, b} {
		e := <-ch
		assert.Equal(t, KindBackpressure, e.Kind)
		assert.Equal(t, 9, e.QueueDepth)
		assert.False(t, e.At.IsZero())
	}
}

func TestHubPublishNeverBlocks(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	defer cancel()

	for i := 0; i < 5; i++ {
		h.Publish(Event{Kind: KindDecisionQueued, QueueDepth: i})
	}
	assert.Equal(t, int64(4), h.Dropped())
	assert.Equal(t, 0, (<-ch).QueueDepth)
}

func TestHubUnsubscribeAndClose(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	cancel()
	cancel()
	_, ok := <-ch
	require.False(t, ok, "channel must be closed after unsubscribe")

	other, _ := h.Subscribe(1)
	h.Close()
	h.Close()
	_, ok = <-other
	require.False(t, ok)

	late, _ := h.Subscribe(1)
	_, ok = <-late
	require.False(t, ok, "subscribe after close returns a closed channel")
	h.Publish(Event{Kind: KindMetrics})
}
