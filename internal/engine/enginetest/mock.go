// Package enginetest provides test doubles for the engine package.
package enginetest

import (
	"context"
	"errors"
	"sync"

	"github.com/flemzord/surveil/internal/engine"
)

// MockEngine is a configurable test double for engine.Engine.
// Set CompleteFunc to control behaviour. All methods are safe for concurrent use.
type MockEngine struct {
	CompleteFunc    func(ctx context.Context, req engine.Request) (engine.Response, error)
	HealthCheckFunc func(ctx context.Context) error
	Model           string

	mu            sync.Mutex
	CompleteCalls int
	Requests      []engine.Request
}

// Complete delegates to CompleteFunc and records the request.
func (m *MockEngine) Complete(ctx context.Context, req engine.Request) (engine.Response, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.CompleteFunc == nil {
		return engine.Response{}, errors.New("enginetest: CompleteFunc not set")
	}
	return m.CompleteFunc(ctx, req)
}

// ModelName returns Model or "mock".
func (m *MockEngine) ModelName() string {
	if m.Model == "" {
		return "mock"
	}
	return m.Model
}

// HealthCheck delegates to HealthCheckFunc, succeeding when unset.
func (m *MockEngine) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}

// Calls returns the number of Complete invocations.
func (m *MockEngine) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls
}

// Script returns a MockEngine answering with responses in order. Once the
// script is exhausted the last response is repeated.
func Script(responses ...engine.Response) *MockEngine {
	var (
		mu  sync.Mutex
		idx int
	)
	return &MockEngine{
		CompleteFunc: func(_ context.Context, _ engine.Request) (engine.Response, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(responses) == 0 {
				return engine.Response{}, errors.New("enginetest: empty script")
			}
			resp := responses[min(idx, len(responses)-1)]
			idx++
			return resp, nil
		},
	}
}

// Interface guards.
var (
	_ engine.Engine        = (*MockEngine)(nil)
	_ engine.HealthChecker = (*MockEngine)(nil)
)
