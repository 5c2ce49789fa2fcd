package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/decision-pipeline/pkg/decision"
)

func TestResultsEvictsLeastRecentlyUsed(t *testing.T) {
	r := NewResults(2, time.Hour)
	r.Put(Record{DecisionID: "a", Status: StatusResolved})
	r.Put(Record{DecisionID: "b", Status: StatusRejected})
	_, _ = r.Get("a")
	r.Put(Record{DecisionID: "c", Status: StatusDeadLettered})

	_, ok := r.Get("b")
	assert.False(t, ok)
	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, StatusResolved, got.Status)
	assert.Equal(t, 2, r.Len())
}

func TestResultsExpire(t *testing.T) {
	r := NewResults(10, 20*time.Millisecond)
	r.Put(Record{DecisionID: "a", Result: &decision.Result{DecisionID: "a", Success: true}})
	_, ok := r.Get("a")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := r.Get("a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
