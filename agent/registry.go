package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentcenter/core"
)

// Registry is a thread-safe collection of agent definitions keyed by id.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]core.Agent
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]core.Agent),
	}
}

// Register adds an agent. Re-registration under an existing id fails with
// core.ErrInvalidConfig; use Replace to overwrite deliberately.
func (r *Registry) Register(a core.Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.ID]; exists {
		return fmt.Errorf("%w: agent %q already registered", core.ErrInvalidConfig, a.ID)
	}

	r.agents[a.ID] = a.Clone()

	return nil
}

// Replace stores the agent unconditionally, overwriting any previous
// registration under the same id.
func (r *Registry) Replace(a core.Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.agents[a.ID] = a.Clone()

	return nil
}

// Get returns a clone of the agent registered under id, or false if none
// exists.
func (r *Registry) Get(id string) (core.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return core.Agent{}, false
	}

	return a.Clone(), true
}

// Remove deletes the agent registered under id and reports whether one
// existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[id]; !ok {
		return false
	}

	delete(r.agents, id)

	return true
}

// IDs returns the registered agent ids in unspecified order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}

	return ids
}
