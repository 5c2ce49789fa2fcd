// Package cache keeps recent terminal outcomes addressable by decision ID.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/your-org/decision-pipeline/pkg/decision"
)

// Status is the terminal state recorded for a decision.
type Status string

const (
	StatusResolved     Status = "resolved"
	StatusRejected     Status = "rejected"
	StatusDeadLettered Status = "dead_lettered"
)

// Record is the cached terminal outcome of one decision.
type Record struct {
	DecisionID  string           `json:"decisionId"`
	Type        string           `json:"type"`
	Status      Status           `json:"status"`
	Result      *decision.Result `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	Attempts    int              `json:"attempts"`
	CompletedAt time.Time        `json:"completedAt"`
}

// Results is a size-bounded LRU whose entries expire after ttl.
type Results struct {
	lru *expirable.LRU[string, Record]
}

func NewResults(size int, ttl time.Duration) *Results {
	if size <= 0 {
		size = 50000
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Results{lru: expirable.NewLRU[string, Record](size, nil, ttl)}
}

func (r *Results) Put(rec Record) {
	r.lru.Add(rec.DecisionID, rec)
}

func (r *Results) Get(id string) (Record, bool) {
	return r.lru.Get(id)
}

func (r *Results) Len() int {
	return r.lru.Len()
}

func (r *Results) Purge() {
	r.lru.Purge()
}
