package agent

import (
	"sort"
	"sync"
)

// Constructor builds an agent instance wired to the given logger.
type Constructor func(log Logger) Agent

// Registry maps agent names to constructors. It is an explicit value handed
// to each orchestrator rather than package-level state, so different
// orchestrators and tests can carry different agent sets.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Builtin returns a registry pre-populated with the four standard deployment
// agents.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(NameSecurityAuditor, func(log Logger) Agent { return NewSecurityAuditor(log) })
	r.Register(NamePerformanceEngineer, func(log Logger) Agent { return NewPerformanceEngineer(log) })
	r.Register(NameTestAutomator, func(log Logger) Agent { return NewTestAutomator(log) })
	r.Register(NameDatabaseOptimizer, func(log Logger) Agent { return NewDatabaseOptimizer(log) })
	return r
}

// Register adds or replaces a constructor under the given name.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
}

// New instantiates the named agent. The second return is false when the name
// is not registered.
func (r *Registry) New(name string, log Logger) (Agent, bool) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return ctor(log), true
}

// Exists reports whether the named agent is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctors[name]
	return ok
}

// Names returns the registered agent names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
