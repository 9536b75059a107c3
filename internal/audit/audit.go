// Package audit appends one JSON line per completed analysis to an
// append-only audit trail.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is the audit projection of a decision.
type Entry struct {
	Timestamp               time.Time `json:"timestamp"`
	AlertID                 string    `json:"alert_id"`
	Category                string    `json:"category"`
	Determination           string    `json:"determination"`
	GenuineConfidence       int       `json:"genuine_confidence"`
	FalsePositiveConfidence int       `json:"false_positive_confidence"`
	Reasoning               string    `json:"reasoning"`
	Fallback                bool      `json:"fallback,omitempty"`
}

// Config configures a Logger.
type Config struct {
	// Writer is the destination for JSONL output. If nil, entries are only
	// dispatched to OnEntry.
	Writer io.Writer

	// OnEntry, if non-nil, is called for every entry.
	OnEntry func(Entry)

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// Logger writes audit entries as JSONL. Safe for concurrent use.
type Logger struct {
	writer  io.Writer
	closer  io.Closer
	onEntry func(Entry)
	now     func() time.Time
	mu      sync.Mutex
}

// New creates a logger with the given configuration.
func New(cfg Config) *Logger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Logger{writer: cfg.Writer, onEntry: cfg.OnEntry, now: now}
}

// Open creates a logger appending to the file at path, creating parent
// directories as needed. onEntry may be nil.
func Open(path string, onEntry func(Entry)) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	l := New(Config{Writer: f, OnEntry: onEntry})
	l.closer = f
	return l, nil
}

// Log appends an entry. A zero Timestamp is set to the current time.
func (l *Logger) Log(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEntry != nil {
		l.onEntry(e)
	}
	if l.writer == nil {
		return nil
	}
	if err := json.NewEncoder(l.writer).Encode(e); err != nil {
		return fmt.Errorf("audit: write: %w", err)
	}
	return nil
}

// Close releases the underlying file, if the logger owns one.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
