// Package engine defines the contract between surveil and the reasoning
// engine that drives both the investigation loop and evidence interpretation.
// Concrete adapters live under modules/engine and register as core modules.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service is the core service name under which the engine module publishes
// its Engine.
const Service = "engine"

// Engine is a chat-completion style reasoning engine with tool calling.
type Engine interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req Request) (Response, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// Streamer is implemented by engines that can deliver a completion
// incrementally. Initial connection errors are returned directly; mid-stream
// errors arrive via Chunk.Err.
type Streamer interface {
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// HealthChecker is implemented by engines that support an active health check.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ErrEmptyResponse is returned by Interpret when the engine produced no text.
var ErrEmptyResponse = errors.New("engine: empty response")

// Interpret runs a single-turn completion: system framing plus one user
// prompt, no tools. The returned text is never empty.
func Interpret(ctx context.Context, e Engine, system, prompt string) (string, error) {
	resp, err := e.Complete(ctx, Request{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("engine: interpret: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}

// Collect drains a stream into a single Response, calling onText for every
// text fragment as it arrives. The first chunk error aborts collection; the
// rest of the stream is drained so the producer goroutine can exit.
func Collect(ch <-chan Chunk, onText func(string)) (Response, error) {
	var (
		resp Response
		sb   strings.Builder
	)
	for chunk := range ch {
		if chunk.Err != nil {
			for range ch { //nolint:revive // drain
			}
			return Response{}, chunk.Err
		}
		if chunk.Content != "" {
			sb.WriteString(chunk.Content)
			if onText != nil {
				onText(chunk.Content)
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, chunk.ToolCalls...)
		if chunk.FinishReason != "" {
			resp.FinishReason = chunk.FinishReason
		}
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
	}
	resp.Content = sb.String()
	return resp, nil
}
