package agent

import (
	"encoding/json"
	"time"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/decision"
)

// Node names the loop state being entered or left.
type Node string

// Loop states.
const (
	NodeDeciding   Node = "deciding"
	NodeExecuting  Node = "executing"
	NodeFinalizing Node = "finalizing"
)

// Event is a raw progress event emitted by the loop. The set of
// implementations is closed: consumers switch over the concrete types below.
type Event interface {
	rawEvent()
}

// AnalysisStarted is the first event of every run.
type AnalysisStarted struct {
	AlertID  string
	Category alert.Category
}

// NodeStarted marks entry into a loop state.
type NodeStarted struct {
	Node      Node
	Iteration int
}

// NodeCompleted marks exit from a loop state.
type NodeCompleted struct {
	Node      Node
	Iteration int
}

// ToolStarted is emitted on the tool side channel before a tool runs.
type ToolStarted struct {
	CallID string
	Tool   string
	Args   json.RawMessage
}

// ToolCompleted is emitted on the tool side channel after a tool returns.
type ToolCompleted struct {
	CallID   string
	Tool     string
	Preview  string
	IsError  bool
	Duration time.Duration
}

// Thinking carries the engine's narrative between tool requests.
type Thinking struct {
	Text string
}

// TokenGenerated carries one streamed text fragment.
type TokenGenerated struct {
	Text string
}

// DecisionReady is the terminal event of a successful run.
type DecisionReady struct {
	Decision decision.Decision
}

// Failed is the terminal event of a failed run.
type Failed struct {
	Stage string
	Err   error
}

func (AnalysisStarted) rawEvent() {}
func (NodeStarted) rawEvent()     {}
func (NodeCompleted) rawEvent()   {}
func (ToolStarted) rawEvent()     {}
func (ToolCompleted) rawEvent()   {}
func (Thinking) rawEvent()        {}
func (TokenGenerated) rawEvent()  {}
func (DecisionReady) rawEvent()   {}
func (Failed) rawEvent()          {}

// Terminal reports whether e ends a run.
func Terminal(e Event) bool {
	switch e.(type) {
	case DecisionReady, Failed:
		return true
	default:
		return false
	}
}

// Sinks receives the events of one run. Loop events and tool events travel
// separately so a consumer can order tool lifecycle events ahead of the loop
// transition that triggered them. Nil sinks discard; a nil Tool sink falls
// back to Loop.
type Sinks struct {
	Loop func(Event)
	Tool func(Event)
}

func (s Sinks) loop(e Event) {
	if s.Loop != nil {
		s.Loop(e)
	}
}

func (s Sinks) tool(e Event) {
	if s.Tool != nil {
		s.Tool(e)
		return
	}
	s.loop(e)
}
