package processor

import (
	"fmt"
	"sort"
	"sync"
)

// Registry provides thread-safe registration and lookup of processors by
// module name.
//
// Example usage:
//
//	reg := NewRegistry()
//	reg.MustRegister(NewUpper())
//	p, _ := reg.Get("upper")
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		processors: make(map[string]Processor),
	}
}

// Register adds a processor to the registry.
// Returns an error if the processor is nil, unnamed, or its name is taken.
func (r *Registry) Register(p Processor) error {
	if p == nil {
		return fmt.Errorf("cannot register nil processor")
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("cannot register processor with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.processors[name]; exists {
		return fmt.Errorf("processor %q already registered", name)
	}

	r.processors[name] = p
	return nil
}

// MustRegister adds a processor and panics on failure. Registering the same
// module name twice is a wiring mistake that should stop the binary at
// startup, not at the first request.
func (r *Registry) MustRegister(p Processor) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Get retrieves a processor by module name.
func (r *Registry) Get(name string) (Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.processors[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, name)
	}
	return p, nil
}

// Has reports whether a processor is registered under the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.processors[name]
	return exists
}

// List returns all registered module names, sorted.
// The returned slice is a copy and safe to modify.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered processors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.processors)
}

// Convert renders a stored result of the named module in the given format.
// It satisfies the store's Converter interface, so stores can hand format
// conversion back to the owning module.
func (r *Registry) Convert(module, id string, result []byte, format string) ([]byte, error) {
	p, err := r.Get(module)
	if err != nil {
		return nil, err
	}
	return p.Convert(id, result, format)
}
