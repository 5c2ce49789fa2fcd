// Package deadletter keeps decisions that reached a terminal failure.
package deadletter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/your-org/decision-pipeline/pkg/decision"
)

// Reasons recorded on an Entry.
const (
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonNonRetryable     = "non_retryable"
)

// Entry is one dead-lettered decision.
type Entry struct {
	Decision       decision.Decision `json:"decision" dynamodbav:"decision"`
	DecisionID     string            `json:"decisionId" dynamodbav:"decision_id"`
	Reason         string            `json:"reason" dynamodbav:"reason"`
	Error          string            `json:"error" dynamodbav:"error"`
	Attempts       int               `json:"attempts" dynamodbav:"attempts"`
	DeadLetteredAt time.Time         `json:"deadLetteredAt" dynamodbav:"dead_lettered_at"`
}

// NewEntry builds an entry from the failed decision and its last error.
func NewEntry(d decision.Decision, reason string, cause error, at time.Time) Entry {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return Entry{
		Decision:       d,
		DecisionID:     d.ID,
		Reason:         reason,
		Error:          msg,
		Attempts:       d.Attempts,
		DeadLetteredAt: at.UTC(),
	}
}

// Sink accepts dead-lettered entries.
type Sink interface {
	Add(ctx context.Context, e Entry) error
}

// Store is a Sink that can be read back.
type Store interface {
	Sink
	List(ctx context.Context, limit int) ([]Entry, error)
	Len(ctx context.Context) (int, error)
}

// MemoryStore keeps entries in process, oldest first.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Add(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// List returns up to limit entries; limit <= 0 means all.
func (s *MemoryStore) List(_ context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	copy(out, s.entries[:n])
	return out, nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Tee writes to a primary store and mirrors every entry to additional sinks.
// Reads go to the primary.
type Tee struct {
	primary Store
	mirrors []Sink
}

func NewTee(primary Store, mirrors ...Sink) *Tee {
	nonNil := make([]Sink, 0, len(mirrors))
	for _, m := range mirrors {
		if m != nil {
			nonNil = append(nonNil, m)
		}
	}
	return &Tee{primary: primary, mirrors: nonNil}
}

func (t *Tee) Add(ctx context.Context, e Entry) error {
	if err := t.primary.Add(ctx, e); err != nil {
		return fmt.Errorf("dead-letter primary: %w", err)
	}
	var errs []error
	for _, m := range t.mirrors {
		if err := m.Add(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("dead-letter mirror: %w", errors.Join(errs...))
	}
	return nil
}

func (t *Tee) List(ctx context.Context, limit int) ([]Entry, error) {
	return t.primary.List(ctx, limit)
}

func (t *Tee) Len(ctx context.Context) (int, error) {
	return t.primary.Len(ctx)
}
