package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/decision"
	"github.com/flemzord/surveil/internal/stream"
)

// ManagerConfig tunes a Manager.
type ManagerConfig struct {
	// BufferSize is the per-task event replay capacity.
	BufferSize int

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// Manager holds the in-memory task table. Each task owns a record and an
// event buffer; the single writer for a task is its runner.
type Manager struct {
	mu         sync.RWMutex
	tasks      map[string]*entry
	bufferSize int
	now        func() time.Time
}

type entry struct {
	mu     sync.RWMutex
	record Record
	buffer *stream.Buffer
	// changed is closed and replaced whenever an event is appended.
	changed chan struct{}
	final   bool
}

// NewManager returns an empty manager.
func NewManager(cfg ManagerConfig) *Manager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		tasks:      make(map[string]*entry),
		bufferSize: cfg.BufferSize,
		now:        now,
	}
}

// Create registers a new processing task.
func (m *Manager) Create(alertID string, category alert.Category) Record {
	now := m.now().UTC()
	e := &entry{
		record: Record{
			ID:        uuid.NewString(),
			Status:    StatusProcessing,
			AlertID:   alertID,
			Category:  category,
			CreatedAt: now,
			UpdatedAt: now,
		},
		buffer:  stream.NewBuffer(m.bufferSize),
		changed: make(chan struct{}),
	}

	m.mu.Lock()
	m.tasks[e.record.ID] = e
	m.mu.Unlock()
	return e.record
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Get returns a copy of the task record.
func (m *Manager) Get(id string) (Record, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Record{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.record, nil
}

// Decision returns the decision of a completed task. A task that is still
// processing or that failed yields ErrNotReady.
func (m *Manager) Decision(id string) (Record, decision.Decision, error) {
	rec, err := m.Get(id)
	if err != nil {
		return Record{}, decision.Decision{}, err
	}
	if rec.Status != StatusComplete || rec.Decision == nil {
		return rec, decision.Decision{}, fmt.Errorf("%w: task %s is %s", ErrNotReady, id, rec.Status)
	}
	return rec, *rec.Decision, nil
}

// Append adds ev to the task's stream. A final event also moves the record
// to its terminal status in the same critical section, so a reader that sees
// the final event always sees the terminal status. Nothing is accepted after
// the final event.
func (m *Manager) Append(id string, ev stream.Event) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.final {
		return fmt.Errorf("%w: %s", ErrTerminated, id)
	}
	if ev.Final {
		e.final = true
		e.record.UpdatedAt = m.now().UTC()
		if d, ok := ev.Payload["decision"].(decision.Decision); ok && ev.Category == stream.CategoryAnalysisComplete {
			e.record.Status = StatusComplete
			e.record.Decision = &d
		} else {
			e.record.Status = StatusError
			e.record.Error = ev.Message()
		}
	}
	e.buffer.Add(ev)
	close(e.changed)
	e.changed = make(chan struct{})
	return nil
}

// Events returns the buffered events after lastID, whether the stream has
// ended, and a channel closed on the next append.
func (m *Manager) Events(id, lastID string) ([]stream.Event, bool, <-chan struct{}, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, false, nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.buffer.After(lastID), e.final, e.changed, nil
}

// Subscribe streams the task's events after lastID until the final event is
// delivered or ctx is done. The channel closes at once when the task has
// ended and nothing remains after lastID. Events are de-duplicated by id.
func (m *Manager) Subscribe(ctx context.Context, id, lastID string) (<-chan stream.Event, error) {
	if _, err := m.lookup(id); err != nil {
		return nil, err
	}
	out := make(chan stream.Event)
	go func() {
		defer close(out)
		seen := make(map[string]struct{})
		cursor := lastID
		for {
			events, final, changed, err := m.Events(id, cursor)
			if err != nil {
				return
			}
			for _, ev := range events {
				if _, dup := seen[ev.ID]; dup {
					continue
				}
				seen[ev.ID] = struct{}{}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				cursor = ev.ID
				if ev.Final {
					return
				}
			}
			// Resumed at or past the final event: nothing more will arrive.
			if final {
				return
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Cancel always rejects: analyses cannot be interrupted once started.
func (m *Manager) Cancel(id string) error {
	if _, err := m.lookup(id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrCancelUnsupported, id)
}

// Evict removes finished tasks created more than maxAge ago and returns how
// many were removed. Processing tasks are never evicted.
func (m *Manager) Evict(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.tasks {
		e.mu.RLock()
		expired := e.record.Done() && e.record.CreatedAt.Before(cutoff)
		e.mu.RUnlock()
		if expired {
			delete(m.tasks, id)
			n++
		}
	}
	return n
}

// List returns all records, newest first.
func (m *Manager) List() []Record {
	m.mu.RLock()
	out := make([]Record, 0, len(m.tasks))
	for _, e := range m.tasks {
		e.mu.RLock()
		out = append(out, e.record)
		e.mu.RUnlock()
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Counts returns the number of tasks per status.
func (m *Manager) Counts() map[Status]int {
	counts := map[Status]int{StatusProcessing: 0, StatusComplete: 0, StatusError: 0}
	for _, r := range m.List() {
		counts[r.Status]++
	}
	return counts
}
