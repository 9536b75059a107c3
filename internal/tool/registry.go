package tool

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Definition is a tool's advertised shape, as handed to the reasoning engine.
type Definition struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Observer receives one notification per executed tool call.
type Observer interface {
	ObserveTool(name string, elapsed time.Duration, failed bool)
}

// Registry holds the tools available to one investigation strategy.
// It is instance-based (not global) so each category owns its own set.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	observer Observer
}

// NewRegistry creates a registry holding the given tools. It panics on an
// invalid or duplicate tool, which is a programming error.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// SetObserver installs an observer notified after every execution.
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return ErrEmptyToolName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	return nil
}

// Get returns the tool with the given name, or ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Tools returns the registered tools sorted by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Tool) int {
		return cmp.Compare(strings.TrimSpace(a.Name()), strings.TrimSpace(b.Name()))
	})
	return out
}

// Definitions returns all tool definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	tools := r.Tools()
	defs := make([]Definition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, Definition{
			Name:        strings.TrimSpace(t.Name()),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	return defs
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Preflight runs Preflight on every tool that supports it and returns the
// first failure.
func (r *Registry) Preflight() error {
	for _, t := range r.Tools() {
		p, ok := t.(Preflighter)
		if !ok {
			continue
		}
		if err := p.Preflight(); err != nil {
			return fmt.Errorf("tool %s: %w", t.Name(), err)
		}
	}
	return nil
}

// Execute looks up and runs one tool call, recording the call and its
// wall-clock latency into stats (which may be nil). A panic inside the tool
// is converted into an ErrPanic error.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, stats *Stats) (out Output, err error) {
	t, err := r.Get(name)
	if err != nil {
		return Output{}, err
	}

	r.mu.RLock()
	observer := r.observer
	r.mu.RUnlock()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			out = Output{}
			err = fmt.Errorf("%w: %s: %v", ErrPanic, name, rec)
		}
		elapsed := time.Since(start)
		stats.Record(name, elapsed)
		if observer != nil {
			observer.ObserveTool(name, elapsed, err != nil)
		}
	}()

	return t.Execute(ctx, args)
}

// maxPreviewLen is the maximum length of a result preview.
const maxPreviewLen = 240

// Preview shortens s for event payloads and logs. It walks back to a valid
// UTF-8 rune boundary so multi-byte characters are never split.
func Preview(s string) string {
	if len(s) <= maxPreviewLen {
		return s
	}
	i := maxPreviewLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "...(truncated)"
}
