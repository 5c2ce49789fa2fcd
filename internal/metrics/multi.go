package metrics

import "time"

// MultiRecorder fans out metrics to multiple recorders.
type MultiRecorder struct {
	recorders []Recorder
}

func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	nonNil := make([]Recorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			nonNil = append(nonNil, r)
		}
	}
	return &MultiRecorder{recorders: nonNil}
}

func (m *MultiRecorder) ObserveSubmitted() {
	for _, r := range m.recorders {
		r.ObserveSubmitted()
	}
}

func (m *MultiRecorder) ObserveRejected(reason string) {
	for _, r := range m.recorders {
		r.ObserveRejected(reason)
	}
}

func (m *MultiRecorder) ObserveAttempt(decisionType string, status string, duration time.Duration) {
	for _, r := range m.recorders {
		r.ObserveAttempt(decisionType, status, duration)
	}
}

func (m *MultiRecorder) ObserveRetry(decisionType string) {
	for _, r := range m.recorders {
		r.ObserveRetry(decisionType)
	}
}

func (m *MultiRecorder) ObserveTerminal(decisionType string, outcome string) {
	for _, r := range m.recorders {
		r.ObserveTerminal(decisionType, outcome)
	}
}

func (m *MultiRecorder) ObserveCircuitOpen(decisionType string) {
	for _, r := range m.recorders {
		r.ObserveCircuitOpen(decisionType)
	}
}

func (m *MultiRecorder) ObserveSnapshot(s Snapshot) {
	for _, r := range m.recorders {
		r.ObserveSnapshot(s)
	}
}
