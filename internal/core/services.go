package core

import (
	"fmt"
	"slices"
	"sync"
)

// services is shared by an AppContext and every module-scoped copy of it.
type services struct {
	mu    sync.RWMutex
	items map[string]any
}

func newServices() *services {
	return &services{items: make(map[string]any)}
}

// RegisterService publishes a value under name so later modules can look
// it up during Provision. Registering the same name twice replaces the
// previous value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.items[name] = svc
}

// GetService returns the service registered under name.
func (ctx *AppContext) GetService(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.items[name]
	return svc, ok
}

// ServiceNames returns the registered service names in sorted order.
func (ctx *AppContext) ServiceNames() []string {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	names := make([]string, 0, len(ctx.services.items))
	for name := range ctx.services.items {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns the service registered under name as a T.
// It fails when the service is missing or has a different type.
func Lookup[T any](ctx *AppContext, name string) (T, error) {
	var zero T
	svc, ok := ctx.GetService(name)
	if !ok {
		return zero, fmt.Errorf("service %q not registered", name)
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("service %q has type %T, want %T", name, svc, zero)
	}
	return typed, nil
}
