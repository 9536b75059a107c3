package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/surveil/internal/engine"
	"github.com/flemzord/surveil/internal/tool"
)

// ToolCallRecord tracks one tool invocation during a run.
type ToolCallRecord struct {
	Call     engine.ToolCall
	Output   tool.Output
	Duration time.Duration
}

// executor runs the tool calls of one Executing round.
type executor struct {
	registry *tool.Registry
	stats    *tool.Stats
	sinks    Sinks
}

// run executes calls sequentially in request order. An unknown tool name is
// reported back to the engine as an error output; any other tool error
// (including a recovered panic) aborts the round.
func (e *executor) run(ctx context.Context, calls []engine.ToolCall) ([]ToolCallRecord, error) {
	records := make([]ToolCallRecord, 0, len(calls))
	for _, call := range calls {
		rec, err := e.runOne(ctx, call)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (e *executor) runOne(ctx context.Context, call engine.ToolCall) (ToolCallRecord, error) {
	e.sinks.tool(ToolStarted{CallID: call.ID, Tool: call.Name, Args: call.Arguments})

	start := time.Now()
	out, err := e.registry.Execute(ctx, call.Name, call.Arguments, e.stats)
	elapsed := time.Since(start)

	if errors.Is(err, tool.ErrToolNotFound) {
		out, err = tool.Errorf("unknown tool %q", call.Name), nil
	}
	if err != nil {
		e.sinks.tool(ToolCompleted{CallID: call.ID, Tool: call.Name, Preview: tool.Preview(err.Error()), IsError: true, Duration: elapsed})
		return ToolCallRecord{}, fmt.Errorf("agent: tool %s: %w", call.Name, err)
	}

	e.sinks.tool(ToolCompleted{CallID: call.ID, Tool: call.Name, Preview: tool.Preview(out.Content), IsError: out.IsError, Duration: elapsed})
	return ToolCallRecord{Call: call, Output: out, Duration: elapsed}, nil
}

// appendToolResults adds tool results to the conversation history.
func appendToolResults(messages []engine.Message, records []ToolCallRecord) []engine.Message {
	for _, rec := range records {
		messages = append(messages, engine.Message{
			Role:    engine.RoleTool,
			Content: rec.Output.Content,
			ToolID:  rec.Call.ID,
			IsError: rec.Output.IsError,
		})
	}
	return messages
}

func toolDefinitions(r *tool.Registry) []engine.ToolDefinition {
	defs := r.Definitions()
	out := make([]engine.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, engine.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Schema})
	}
	return out
}
