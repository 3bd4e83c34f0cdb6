package tool

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentcenter/core"
)

// Registry is a thread-safe collection of named tools. Names must be
// unique; registering a duplicate name is a configuration error.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry. It fails with core.ErrInvalidConfig
// if the tool is nil, has an empty name, or the name is already taken.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("%w: tool must not be nil", core.ErrInvalidConfig)
	}

	name := t.Name()
	if name == "" {
		return fmt.Errorf("%w: tool name must not be empty", core.ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: tool %q already registered", core.ErrInvalidConfig, name)
	}

	r.tools[name] = t

	return nil
}

// Get returns the tool registered under name, or false if none exists.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]

	return t, ok
}

// Names returns the registered tool names in unspecified order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}

	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools)
}
