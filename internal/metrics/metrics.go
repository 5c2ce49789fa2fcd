package metrics

import "time"

// Terminal outcome labels.
const (
	OutcomeResolved     = "resolved"
	OutcomeRejected     = "rejected"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeShutdown     = "shutdown"
)

// Recorder defines metric hooks for pipeline instrumentation.
type Recorder interface {
	ObserveSubmitted()
	ObserveRejected(reason string)
	ObserveAttempt(decisionType string, status string, duration time.Duration)
	ObserveRetry(decisionType string)
	ObserveTerminal(decisionType string, outcome string)
	ObserveCircuitOpen(decisionType string)
	ObserveSnapshot(s Snapshot)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveSubmitted()                            {}
func (NoopRecorder) ObserveRejected(string)                       {}
func (NoopRecorder) ObserveAttempt(string, string, time.Duration) {}
func (NoopRecorder) ObserveRetry(string)                          {}
func (NoopRecorder) ObserveTerminal(string, string)               {}
func (NoopRecorder) ObserveCircuitOpen(string)                    {}
func (NoopRecorder) ObserveSnapshot(Snapshot)                     {}
