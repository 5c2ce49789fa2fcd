package queue

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntakeFIFO(t *testing.T) {
	q := NewIntake[int](100)
	for i := 1; i <= 5; i++ {
		depth, err := q.Admit(i)
		require.NoError(t, err)
		assert.Equal(t, i, depth)
	}

	assert.Equal(t, []int{1, 2, 3}, q.PopBatch(3))
	assert.Equal(t, []int{4, 5}, q.PopBatch(10))
	assert.Nil(t, q.PopBatch(1))
	assert.Equal(t, 0, q.Len())
}

func TestIntakeBackpressureBound(t *testing.T) {
	// limit = 10 * 0.5
	q := NewIntake[int](5)
	for i := 0; i < 6; i++ {
		_, err := q.Admit(i)
		require.NoError(t, err, "admission %d should pass while depth <= limit", i)
	}

	depth, err := q.Admit(99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackpressure))
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Equal(t, 6, depth)

	var bpErr *BackpressureError
	require.ErrorAs(t, err, &bpErr)
	assert.Equal(t, 6, bpErr.Depth)

	// Every subsequent submit stays rejected until the queue drains below the limit.
	for i := 0; i < 3; i++ {
		_, err := q.Admit(i)
		require.ErrorIs(t, err, ErrBackpressure)
	}
	q.PopBatch(2)
	_, err = q.Admit(7)
	require.NoError(t, err)
}

func TestIntakeRequeueBypassesBackpressure(t *testing.T) {
	q := NewIntake[string](0)
	_, err := q.Admit("a")
	require.NoError(t, err)
	_, err = q.Admit("b")
	require.ErrorIs(t, err, ErrBackpressure)

	assert.Equal(t, 2, q.Requeue("retry"))
	assert.Equal(t, []string{"a", "retry"}, q.PopBatch(5))
}

func TestIntakeClose(t *testing.T) {
	q := NewIntake[int](10)
	q.Close()
	q.Close()
	_, err := q.Admit(1)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, err, ErrRejected)
	assert.True(t, q.Closed())

	q.Requeue(2)
	assert.Equal(t, []int{2}, q.Drain())
}

func TestIntakeConcurrentProducersAndConsumer(t *testing.T) {
	q := NewIntake[int](1 << 20)
	const producers, perProducer = 8, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_, _ = q.Admit(i)
			}
		}()
	}

	got := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		got += len(q.PopBatch(64))
		select {
		case <-done:
			got += len(q.Drain())
			assert.Equal(t, producers*perProducer, got)
			return
		default:
		}
	}
}
