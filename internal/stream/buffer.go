package stream

import "sync"

// DefaultBufferSize is the replay capacity of a Buffer.
const DefaultBufferSize = 100

// Buffer is a bounded, ordered replay log of one task's events. Adds are
// idempotent by event id; once full, the oldest event is evicted. It is
// safe for concurrent readers alongside a single writer.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	events   []Event
	seen     map[string]struct{}
}

// NewBuffer returns a buffer holding at most capacity events. A
// non-positive capacity selects DefaultBufferSize.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &Buffer{
		capacity: capacity,
		events:   make([]Event, 0, capacity),
		seen:     make(map[string]struct{}, capacity),
	}
}

// Add appends e unless an event with the same id is already buffered.
// It reports whether e was added.
func (b *Buffer) Add(e Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.seen[e.ID]; dup {
		return false
	}
	if len(b.events) == b.capacity {
		delete(b.seen, b.events[0].ID)
		b.events = append(b.events[:0], b.events[1:]...)
	}
	b.events = append(b.events, e)
	b.seen[e.ID] = struct{}{}
	return true
}

// After returns the events strictly after lastID. An empty or unknown
// lastID returns the whole buffer; clients replaying across a long gap may
// therefore receive events they already saw and must de-duplicate by id.
func (b *Buffer) After(lastID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if lastID != "" {
		for i, e := range b.events {
			if e.ID == lastID {
				start = i + 1
				break
			}
		}
	}
	out := make([]Event, len(b.events)-start)
	copy(out, b.events[start:])
	return out
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// Capacity returns the maximum number of buffered events.
func (b *Buffer) Capacity() int { return b.capacity }
