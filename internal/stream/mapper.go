package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/surveil/internal/agent"
)

// templates derive a message from the payload when it carries none.
// Placeholders name payload keys.
var templates = map[Category]string{
	CategoryToolStarted:      "Starting {tool}...",
	CategoryToolCompleted:    "Completed {tool}",
	CategoryNodeStarted:      "Entering {node}",
	CategoryNodeCompleted:    "Finished {node}",
	CategoryThinking:         "Reasoning...",
	CategoryAnalysisStarted:  "Analyzing alert {alert_id}",
	CategoryAnalysisComplete: "Analysis complete: {determination}",
	CategoryError:            "Error in {stage}: {error}",
	CategoryKeepAlive:        "Still working...",
}

// Mapper translates raw loop events into StreamEvents for one task.
type Mapper struct {
	TaskID string
	Source string

	// Now and NewID override the clock and id generator for testing.
	Now   func() time.Time
	NewID func() string
}

// NewMapper returns a mapper stamping events with taskID and source.
func NewMapper(taskID, source string) *Mapper {
	return &Mapper{TaskID: taskID, Source: source}
}

// Map returns exactly one event for e, or nil when e is internal chatter
// that is never surfaced.
func (m *Mapper) Map(e agent.Event) *Event {
	var (
		category Category
		payload  map[string]any
		final    bool
	)
	switch ev := e.(type) {
	case agent.AnalysisStarted:
		category = CategoryAnalysisStarted
		payload = map[string]any{"alert_id": ev.AlertID, "category": string(ev.Category)}
	case agent.NodeStarted:
		category = CategoryNodeStarted
		payload = map[string]any{"node": string(ev.Node), "iteration": ev.Iteration}
	case agent.NodeCompleted:
		category = CategoryNodeCompleted
		payload = map[string]any{"node": string(ev.Node), "iteration": ev.Iteration}
	case agent.ToolStarted:
		category = CategoryToolStarted
		payload = map[string]any{"tool": ev.Tool, "call_id": ev.CallID, "args": string(ev.Args)}
	case agent.ToolCompleted:
		category = CategoryToolCompleted
		payload = map[string]any{
			"tool":        ev.Tool,
			"call_id":     ev.CallID,
			"preview":     ev.Preview,
			"is_error":    ev.IsError,
			"duration_ms": ev.Duration.Milliseconds(),
		}
	case agent.Thinking:
		category = CategoryThinking
		payload = map[string]any{"content": ev.Text}
	case agent.TokenGenerated:
		return nil
	case agent.DecisionReady:
		category = CategoryAnalysisComplete
		payload = map[string]any{
			"alert_id":      ev.Decision.AlertID,
			"determination": string(ev.Decision.Determination),
			"decision":      ev.Decision,
		}
		final = true
	case agent.Failed:
		category = CategoryError
		payload = map[string]any{"stage": ev.Stage, "error": errorText(ev.Err)}
		final = true
	default:
		return nil
	}
	ev := m.event(category, payload)
	ev.Final = final
	return &ev
}

// KeepAlive returns a synthetic non-final event.
func (m *Mapper) KeepAlive() Event {
	return m.event(CategoryKeepAlive, map[string]any{})
}

func (m *Mapper) event(c Category, payload map[string]any) Event {
	if _, ok := payload["message"]; !ok {
		payload["message"] = render(templates[c], payload)
	}
	return Event{
		ID:        m.newID(),
		TaskID:    m.TaskID,
		Timestamp: m.now(),
		Source:    m.Source,
		Category:  c,
		Payload:   payload,
	}
}

func (m *Mapper) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *Mapper) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}

// render replaces each {key} in tmpl with the payload value.
func render(tmpl string, payload map[string]any) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(tmpl, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(tmpl[open:], '}')
		if end < 0 {
			break
		}
		b.WriteString(tmpl[:open])
		key := tmpl[open+1 : open+end]
		if v, ok := payload[key]; ok {
			fmt.Fprint(&b, v)
		}
		tmpl = tmpl[open+end+1:]
	}
	b.WriteString(tmpl)
	return b.String()
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
