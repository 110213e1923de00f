package step

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the step instances available to the runtime, keyed by
// fully-qualified name. Instances are long-lived and shared across runs;
// registration happens once at startup, after which the registry is
// frozen and read-only.
type Registry struct {
	mu     sync.RWMutex
	steps  map[string]Step
	frozen bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]Step)}
}

// Register adds a step instance. It fails on duplicate names and after
// Freeze.
func (r *Registry) Register(s Step) error {
	if s == nil {
		return fmt.Errorf("cannot register a nil step")
	}
	name := s.Name()
	if name == "" {
		return fmt.Errorf("cannot register a step with an empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %s", name)
	}
	if _, exists := r.steps[name]; exists {
		return fmt.Errorf("step %s is already registered", name)
	}
	r.steps[name] = s
	return nil
}

// MustRegister panics on registration failure. Intended for startup
// wiring where a duplicate is a programming error.
func (r *Registry) MustRegister(s Step) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Freeze marks the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the step registered under fqn.
func (r *Registry) Lookup(fqn string) (Step, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.steps[fqn]
	return s, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered steps.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}
