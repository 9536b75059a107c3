package core

import (
	"fmt"
	"sort"
	"sync"
)

// services is a name-keyed registry of shared runtime objects (engine, decision
// store, task manager). It is shared by every AppContext derived from the
// same root so modules can discover each other after provisioning.
type services struct {
	mu    sync.RWMutex
	items map[string]any
}

func newServices() *services {
	return &services{items: make(map[string]any)}
}

// RegisterService publishes a shared object under name. Registering the same
// name twice replaces the previous value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.items[name] = svc
}

// Service returns the object registered under name.
func (ctx *AppContext) Service(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.items[name]
	return svc, ok
}

// ServiceNames lists registered service names in sorted order.
func (ctx *AppContext) ServiceNames() []string {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	names := make([]string, 0, len(ctx.services.items))
	for name := range ctx.services.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServiceAs looks up name and asserts it to T.
func ServiceAs[T any](ctx *AppContext, name string) (T, error) {
	var zero T
	svc, ok := ctx.Service(name)
	if !ok {
		return zero, fmt.Errorf("service %q not registered", name)
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("service %q has type %T", name, svc)
	}
	return typed, nil
}
