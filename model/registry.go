package model

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentcenter/core"
)

// Registry is a thread-safe mapping of model names to clients. The name
// is the lookup key agents reference and may differ from the provider's
// own model identifier.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates an empty model registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Client),
	}
}

// Register adds a client under name. Duplicate names fail with
// core.ErrInvalidConfig.
func (r *Registry) Register(name string, client Client) error {
	if name == "" {
		return fmt.Errorf("%w: model name must not be empty", core.ErrInvalidConfig)
	}

	if client == nil {
		return fmt.Errorf("%w: model client must not be nil", core.ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[name]; exists {
		return fmt.Errorf("%w: model %q already registered", core.ErrInvalidConfig, name)
	}

	r.clients[name] = client

	return nil
}

// Get returns the client registered under name, or false if none exists.
func (r *Registry) Get(name string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[name]

	return client, ok
}

// Names returns the registered model names in unspecified order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}

	return names
}
