package hook

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentcenter/core"
)

// Registry is a thread-safe collection of named hooks. Each hook kind
// has its own namespace, so a pre-hook and a post-hook may share a name.
type Registry struct {
	mu      sync.RWMutex
	pre     map[string]PreHook
	post    map[string]PostHook
	summary map[string]SummaryHook
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{
		pre:     make(map[string]PreHook),
		post:    make(map[string]PostHook),
		summary: make(map[string]SummaryHook),
	}
}

// RegisterPre adds a pre-hook. Duplicate names within the pre-hook
// namespace fail with core.ErrInvalidConfig.
func (r *Registry) RegisterPre(h PreHook) error {
	if h == nil || h.Name() == "" {
		return fmt.Errorf("%w: pre-hook must have a name", core.ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pre[h.Name()]; exists {
		return fmt.Errorf("%w: pre-hook %q already registered", core.ErrInvalidConfig, h.Name())
	}

	r.pre[h.Name()] = h

	return nil
}

// RegisterPost adds a post-hook. Duplicate names within the post-hook
// namespace fail with core.ErrInvalidConfig.
func (r *Registry) RegisterPost(h PostHook) error {
	if h == nil || h.Name() == "" {
		return fmt.Errorf("%w: post-hook must have a name", core.ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.post[h.Name()]; exists {
		return fmt.Errorf("%w: post-hook %q already registered", core.ErrInvalidConfig, h.Name())
	}

	r.post[h.Name()] = h

	return nil
}

// RegisterSummary adds a summary hook. Duplicate names within the
// summary namespace fail with core.ErrInvalidConfig.
func (r *Registry) RegisterSummary(h SummaryHook) error {
	if h == nil || h.Name() == "" {
		return fmt.Errorf("%w: summary hook must have a name", core.ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.summary[h.Name()]; exists {
		return fmt.Errorf("%w: summary hook %q already registered", core.ErrInvalidConfig, h.Name())
	}

	r.summary[h.Name()] = h

	return nil
}

// Pre returns the pre-hook registered under name, or false if none exists.
func (r *Registry) Pre(name string) (PreHook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.pre[name]

	return h, ok
}

// Post returns the post-hook registered under name, or false if none exists.
func (r *Registry) Post(name string) (PostHook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.post[name]

	return h, ok
}

// Summary returns the summary hook registered under name, or false if
// none exists.
func (r *Registry) Summary(name string) (SummaryHook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.summary[name]

	return h, ok
}
