// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/flemzord/surveil/internal/tool"
)

// MockTool is a configurable mock implementation of tool.Tool.
type MockTool struct {
	ToolName     string
	ExecuteFunc  func(ctx context.Context, args json.RawMessage) (tool.Output, error)
	PreflightErr error
	Delay        time.Duration

	mu    sync.Mutex
	Calls []json.RawMessage
}

// Name implements tool.Tool.
func (m *MockTool) Name() string {
	if m.ToolName != "" {
		return m.ToolName
	}
	return "mock_tool"
}

// Description implements tool.Tool.
func (m *MockTool) Description() string { return "mock tool " + m.Name() }

// Schema implements tool.Tool.
func (m *MockTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

// Preflight implements tool.Preflighter.
func (m *MockTool) Preflight() error { return m.PreflightErr }

// Execute implements tool.Tool.
func (m *MockTool) Execute(ctx context.Context, args json.RawMessage) (tool.Output, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, args)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return tool.Output{}, ctx.Err()
		}
	}
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args)
	}
	return tool.Output{Content: "evidence from " + m.Name()}, nil
}

// CallCount returns the number of Execute invocations.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Interface guards.
var (
	_ tool.Tool        = (*MockTool)(nil)
	_ tool.Preflighter = (*MockTool)(nil)
)
