// Package performance tracks operation timings across the widget engine.
package performance

import (
	"sync"
	"time"
)

// Marker measures one operation from start to completion.
type Marker struct {
	Operation string        `json:"operation"` // e.g. "session:start", "inject:pass"
	StoreID   string        `json:"storeId,omitempty"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Completed bool          `json:"completed"`

	tracker *Tracker
}

// Complete finishes the marker and records it with the tracker.
func (m *Marker) Complete() {
	if m.Completed {
		return
	}
	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.Completed = true
	if m.tracker != nil {
		m.tracker.record(m)
	}
}

// SetSuccess marks the operation outcome before completion.
func (m *Marker) SetSuccess(success bool) {
	m.Success = success
}

// Stats aggregates completed markers per operation.
type Stats struct {
	Count         int           `json:"count"`
	Failures      int           `json:"failures"`
	TotalDuration time.Duration `json:"totalDuration"`
	MaxDuration   time.Duration `json:"maxDuration"`
}

// Tracker retains a bounded window of completed markers and per-operation
// aggregates.
type Tracker struct {
	mu         sync.Mutex
	recent     []*Marker
	maxRecent  int
	operations map[string]*Stats
}

func NewTracker() *Tracker {
	return &Tracker{
		maxRecent:  1000,
		operations: make(map[string]*Stats),
	}
}

// StartOperation begins a marker; callers defer Complete().
func (t *Tracker) StartOperation(operation, storeID string) *Marker {
	return &Marker{
		Operation: operation,
		StoreID:   storeID,
		StartTime: time.Now(),
		Success:   true,
		tracker:   t,
	}
}

func (t *Tracker) record(m *Marker) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.recent = append(t.recent, m)
	if len(t.recent) > t.maxRecent {
		t.recent = t.recent[len(t.recent)-t.maxRecent:]
	}

	stats := t.operations[m.Operation]
	if stats == nil {
		stats = &Stats{}
		t.operations[m.Operation] = stats
	}
	stats.Count++
	if !m.Success {
		stats.Failures++
	}
	stats.TotalDuration += m.Duration
	if m.Duration > stats.MaxDuration {
		stats.MaxDuration = m.Duration
	}
}

// OperationStats returns a copy of the aggregate for one operation.
func (t *Tracker) OperationStats(operation string) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.operations[operation]; s != nil {
		return *s
	}
	return Stats{}
}

// Snapshot returns aggregates for all operations seen so far.
func (t *Tracker) Snapshot() map[string]Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Stats, len(t.operations))
	for op, s := range t.operations {
		out[op] = *s
	}
	return out
}
