// Package task tracks analysis tasks: their status, their replayable event
// stream and the runner that executes them out of band.
package task

import (
	"errors"
	"time"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/decision"
)

// Status is the lifecycle state of a task.
type Status string

// Task statuses.
const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Sentinel errors.
var (
	// ErrNotFound indicates an unknown task id.
	ErrNotFound = errors.New("task: not found")

	// ErrNotReady indicates the task has no decision (yet, or ever).
	ErrNotReady = errors.New("task: not ready")

	// ErrCancelUnsupported is returned for every cancellation request.
	// Running analyses cannot be interrupted.
	ErrCancelUnsupported = errors.New("task: cancellation is not supported")

	// ErrTerminated indicates an event was offered after the terminal event.
	ErrTerminated = errors.New("task: stream already terminated")
)

// Record is the tracked state of one task.
type Record struct {
	ID        string             `json:"task_id"`
	Status    Status             `json:"status"`
	AlertID   string             `json:"alert_id,omitempty"`
	Category  alert.Category     `json:"category,omitempty"`
	Decision  *decision.Decision `json:"decision,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Done reports whether the task reached a terminal status.
func (r Record) Done() bool {
	return r.Status == StatusComplete || r.Status == StatusError
}
