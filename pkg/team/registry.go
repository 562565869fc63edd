// Package team assembles and holds the conversation participants. The
// factory validates tool bindings and resolves directives; the registry
// preserves registration order, which the engine's round-robin fallback
// depends on.
package team

import (
	"fmt"
	"sync"

	"github.com/haruo/kaigi/pkg/agent"
)

// Registry holds the built agents in registration order.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*agent.Agent
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]*agent.Agent),
	}
}

// Register adds an agent. Duplicate names are rejected.
func (r *Registry) Register(a *agent.Agent) error {
	if a == nil {
		return fmt.Errorf("agent cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.Name()]; exists {
		return fmt.Errorf("agent already registered: %s", a.Name())
	}

	r.agents[a.Name()] = a
	r.order = append(r.order, a.Name())
	return nil
}

// Get retrieves an agent by name.
func (r *Registry) Get(name string) (*agent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.agents[name]
	if !exists {
		return nil, fmt.Errorf("agent not found: %s", name)
	}
	return a, nil
}

// List returns all agents in registration order.
func (r *Registry) List() []*agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*agent.Agent, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.agents[name])
	}
	return out
}

// Names returns agent names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
