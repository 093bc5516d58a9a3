package analyze

import (
	"sync"
	"time"
)

// CallKind classifies a model invocation.
type CallKind string

const (
	CallChunkSummary CallKind = "chunk_summary"
	CallMerge        CallKind = "merge"
)

// CallRecord is one recorded model invocation.
type CallRecord struct {
	Kind CallKind  `json:"kind"`
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// Metrics collects model-call counts for a single analysis run. It is
// created per run, injected into the pipeline, and discarded when the run
// ends; there is no process-wide instance.
type Metrics struct {
	mu      sync.Mutex
	calls   []CallRecord
	started time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{started: time.Now()}
}

// RecordCall notes one model invocation.
func (m *Metrics) RecordCall(kind CallKind, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, CallRecord{Kind: kind, Name: name, At: time.Now()})
}

// Calls returns the total number of recorded invocations.
func (m *Metrics) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MetricsSnapshot is a point-in-time aggregate of a run's model calls.
type MetricsSnapshot struct {
	TotalCalls     int              `json:"total_calls"`
	RuntimeSeconds float64          `json:"runtime_seconds"`
	ByKind         map[CallKind]int `json:"by_kind"`
}

// Snapshot aggregates the recorded calls.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKind := make(map[CallKind]int)
	for _, c := range m.calls {
		byKind[c.Kind]++
	}
	return MetricsSnapshot{
		TotalCalls:     len(m.calls),
		RuntimeSeconds: time.Since(m.started).Seconds(),
		ByKind:         byKind,
	}
}
