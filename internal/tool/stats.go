package tool

import (
	"maps"
	"sync"
	"time"
)

// Stat summarizes the invocations of one tool.
type Stat struct {
	Calls        int64         `json:"calls"`
	TotalLatency time.Duration `json:"total_latency_ns"`
}

// AvgLatency is the mean wall-clock latency per call.
func (s Stat) AvgLatency() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Calls)
}

func (s Stat) add(o Stat) Stat {
	return Stat{Calls: s.Calls + o.Calls, TotalLatency: s.TotalLatency + o.TotalLatency}
}

// Stats holds the tool call counters of a single task. The zero value is
// ready to use and a nil *Stats discards records.
type Stats struct {
	mu    sync.Mutex
	tools map[string]Stat
}

// Record adds one call of name that took elapsed.
func (s *Stats) Record(name string, elapsed time.Duration) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tools == nil {
		s.tools = make(map[string]Stat)
	}
	s.tools[name] = s.tools[name].add(Stat{Calls: 1, TotalLatency: elapsed})
}

// Snapshot returns a copy of the per-tool counters.
func (s *Stats) Snapshot() map[string]Stat {
	if s == nil {
		return map[string]Stat{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.tools)
}

// Total returns the number of calls recorded across all tools.
func (s *Stats) Total() int64 {
	var n int64
	for _, st := range s.Snapshot() {
		n += st.Calls
	}
	return n
}

// Aggregate is the process-wide view of tool usage. Tasks own their Stats
// and merge them here when they finish; readers only see snapshots.
type Aggregate struct {
	mu    sync.RWMutex
	tools map[string]Stat
	tasks int64
}

// NewAggregate returns an empty aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{tools: make(map[string]Stat)}
}

// Merge folds a finished task's stats into the aggregate.
func (a *Aggregate) Merge(s *Stats) {
	snap := s.Snapshot()
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, st := range snap {
		a.tools[name] = a.tools[name].add(st)
	}
	a.tasks++
}

// AggregateSnapshot is a read-only copy of the aggregate.
type AggregateSnapshot struct {
	Tasks int64           `json:"tasks"`
	Tools map[string]Stat `json:"tools"`
}

// Snapshot returns a copy of the aggregate counters.
func (a *Aggregate) Snapshot() AggregateSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return AggregateSnapshot{Tasks: a.tasks, Tools: maps.Clone(a.tools)}
}
