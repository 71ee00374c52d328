package fault

import (
	"errors"
	"sync"
)

// ErrDuplicateSource is returned when registering a source whose name is
// already taken.
var ErrDuplicateSource = errors.New("duplicate source name")

// Registry holds the set of fault sources available to the engine.
// Registration order is preserved so listings and weighted draws are
// deterministic given the same seed.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
	order   []string
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source. The name is taken from the source itself.
func (r *Registry) Register(s Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.sources[name]; exists {
		return ErrDuplicateSource
	}
	r.sources[name] = s
	r.order = append(r.order, name)
	return nil
}

// Get looks up a source by name. A miss returns a *NotFoundError naming
// the available sources.
func (r *Registry) Get(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[name]
	if !ok {
		return nil, &NotFoundError{What: "source", Name: name, Available: append([]string(nil), r.order...)}
	}
	return s, nil
}

// Names returns the registered source names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Each calls fn for every source in registration order.
func (r *Registry) Each(fn func(Source)) {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	r.mu.RUnlock()

	for _, name := range names {
		r.mu.RLock()
		s, ok := r.sources[name]
		r.mu.RUnlock()
		if ok {
			fn(s)
		}
	}
}
