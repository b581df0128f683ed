package harness

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/haasonsaas/agentcore/internal/toolargs"
)

// Actor identifies who a tool call runs on behalf of.
type Actor struct {
	WorkspaceID string
	UserID      string
	RequestID   string
}

// Executor runs one normalized tool call. Executors are supplied by the
// workspace layer; the harness only dispatches to them.
type Executor func(ctx context.Context, args toolargs.Args, actor Actor) (any, error)

// Registry maps tool names to executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds or replaces the executor for a known tool.
func (r *Registry) Register(name string, exec Executor) error {
	if !toolargs.Known(name) {
		return fmt.Errorf("register %q: %w", name, toolargs.ErrUnknownTool)
	}
	if exec == nil {
		return fmt.Errorf("register %q: nil executor", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[name] = exec
	return nil
}

// RegisterAll registers every executor in execs.
func (r *Registry) RegisterAll(execs map[string]Executor) error {
	for name, exec := range execs {
		if err := r.Register(name, exec); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the executor for name.
func (r *Registry) Get(name string) (Executor, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[name]
	return exec, ok
}

// Has reports whether an executor is registered for name.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Filter returns a new registry holding only the tools keep accepts.
func (r *Registry) Filter(keep func(name string) bool) *Registry {
	out := NewRegistry()
	if r == nil {
		return out
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, exec := range r.executors {
		if keep(name) {
			out.executors[name] = exec
		}
	}
	return out
}

// Merge returns a new registry with the executors of r overlaid by other.
func (r *Registry) Merge(other *Registry) *Registry {
	out := r.Filter(func(string) bool { return true })
	if other == nil {
		return out
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	for name, exec := range other.executors {
		out.executors[name] = exec
	}
	return out
}
