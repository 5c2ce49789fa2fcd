// Package audit appends one JSON line per terminal decision outcome.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one audit-log record.
type Event struct {
	Timestamp    string `json:"ts"`
	DecisionID   string `json:"decision_id"`
	DecisionType string `json:"decision_type"`
	CustomerID   string `json:"customer_id,omitempty"`
	Status       string `json:"status"`
	Attempts     int    `json:"attempts"`
	DurationMs   int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
}

// Logger writes JSONL audit records. A Logger with an empty path is disabled.
type Logger struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewLogger(path string) *Logger {
	return &Logger{path: path, now: time.Now}
}

func (l *Logger) Enabled() bool {
	return l != nil && l.path != ""
}

// Record stamps ev and appends it.
func (l *Logger) Record(ev Event, err error) error {
	if !l.Enabled() {
		return nil
	}

	if ev.Timestamp == "" {
		ev.Timestamp = l.now().UTC().Format(time.RFC3339Nano)
	}
	if err != nil {
		ev.Error = err.Error()
	}
	b, mErr := json.Marshal(ev)
	if mErr != nil {
		return fmt.Errorf("audit marshal: %w", mErr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if mkErr := os.MkdirAll(filepath.Dir(l.path), 0o755); mkErr != nil {
		return fmt.Errorf("audit mkdir: %w", mkErr)
	}
	f, openErr := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if openErr != nil {
		return fmt.Errorf("audit open: %w", openErr)
	}
	defer func() { _ = f.Close() }()

	if _, wErr := f.Write(append(b, '\n')); wErr != nil {
		return fmt.Errorf("audit write: %w", wErr)
	}
	return nil
}
