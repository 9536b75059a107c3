// Package tool defines the tool contract used by the reasoning loop, the
// registry that dispatches tool calls, and the call statistics kept per task
// and per process.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is a capability the reasoning engine may invoke by name.
//
// Execute distinguishes two failure modes. Caller mistakes (bad or missing
// arguments) are reported as an Output with IsError set and a nil error so
// the engine can correct itself. Anything else (an absent data source, an
// engine failure) is returned as an error and aborts the task.
type Tool interface {
	Name() string
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	Execute(ctx context.Context, args json.RawMessage) (Output, error)
}

// Preflighter is implemented by tools whose backing resources can be
// checked before a task starts.
type Preflighter interface {
	Preflight() error
}

// Output is the result of a tool execution.
type Output struct {
	// Content is the output text from the tool.
	Content string

	// IsError indicates the content describes a caller mistake.
	IsError bool
}

// Errorf builds an IsError output.
func Errorf(format string, args ...any) Output {
	return Output{Content: "Error: " + sprintf(format, args...), IsError: true}
}
