package anthropic

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/flemzord/surveil/internal/engine"
)

// streamBuffer bounds the text fragments waiting for the loop.
const streamBuffer = 16

// Complete implements engine.Engine.
func (e *Engine) Complete(ctx context.Context, req engine.Request) (engine.Response, error) {
	params, err := newParams(req, e.config)
	if err != nil {
		return engine.Response{}, err
	}
	e.logger.Debug("engine request", "messages", len(params.Messages), "tools", len(params.Tools))

	msg, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return engine.Response{}, classify(err)
	}
	return toResponse(msg), nil
}

// Stream implements engine.Streamer. Text fragments are delivered as they
// arrive; the message is accumulated from the events and its tool calls,
// finish reason and usage follow in one last chunk. Failures before the
// first event are returned directly.
func (e *Engine) Stream(ctx context.Context, req engine.Request) (<-chan engine.Chunk, error) {
	params, err := newParams(req, e.config)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("engine stream", "messages", len(params.Messages), "tools", len(params.Tools))

	s := e.client.Messages.NewStreaming(ctx, params)
	if !s.Next() {
		_ = s.Close()
		if err := s.Err(); err != nil {
			return nil, classify(err)
		}
		return nil, fmt.Errorf("%w: empty response stream", engine.ErrEngineDown)
	}

	ch := make(chan engine.Chunk, streamBuffer)
	go func() {
		defer close(ch)
		defer func() { _ = s.Close() }()

		send := func(c engine.Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var msg sdk.Message
		for more := true; more; more = s.Next() {
			ev := s.Current()
			if err := msg.Accumulate(ev); err != nil {
				send(engine.Chunk{Err: fmt.Errorf("engine.anthropic: stream: %w", err)})
				return
			}
			if text := textDelta(ev); text != "" && !send(engine.Chunk{Content: text}) {
				return
			}
		}
		if err := s.Err(); err != nil {
			send(engine.Chunk{Err: classify(err)})
			return
		}

		final := toResponse(&msg)
		send(engine.Chunk{ToolCalls: final.ToolCalls, FinishReason: final.FinishReason, Usage: &final.Usage})
	}()
	return ch, nil
}

func textDelta(ev sdk.MessageStreamEventUnion) string {
	if d, ok := ev.AsAny().(sdk.ContentBlockDeltaEvent); ok {
		if t, ok := d.Delta.AsAny().(sdk.TextDelta); ok {
			return t.Text
		}
	}
	return ""
}

// HealthCheck implements engine.HealthChecker with a one-token completion;
// the Messages API has no dedicated health endpoint.
func (e *Engine) HealthCheck(ctx context.Context) error {
	_, err := e.Complete(ctx, engine.Request{
		Messages:  []engine.Message{{Role: engine.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	return err
}
