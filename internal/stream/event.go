// Package stream turns raw loop events into the externally visible event
// stream: the Mapper translates, the Producer orders and paces, and the
// Buffer keeps a bounded replay log per task.
package stream

import "time"

// Category classifies a StreamEvent.
type Category string

// Event categories.
const (
	CategoryToolStarted      Category = "tool-started"
	CategoryToolCompleted    Category = "tool-completed"
	CategoryNodeStarted      Category = "node-started"
	CategoryNodeCompleted    Category = "node-completed"
	CategoryThinking         Category = "agent-thinking"
	CategoryAnalysisStarted  Category = "analysis-started"
	CategoryAnalysisComplete Category = "analysis-complete"
	CategoryError            Category = "error"
	CategoryKeepAlive        Category = "keep-alive"
)

// Event is one unit of externally visible progress. Events are values and
// are never mutated once created.
type Event struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Category  Category       `json:"category"`
	Payload   map[string]any `json:"payload"`
	Final     bool           `json:"final"`
}

// Message returns the payload's human-readable message, if any.
func (e Event) Message() string {
	s, _ := e.Payload["message"].(string)
	return s
}
