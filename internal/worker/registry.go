package worker

import "github.com/rotisserie/eris"

// Registry maps worker names to their implementations. It is populated at
// startup and read-only afterward.
type Registry struct {
	workers map[string]Worker
	order   []string // registration order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]Worker),
	}
}

// Register adds a worker to the registry. Registering the same name twice
// replaces the earlier implementation.
func (r *Registry) Register(w Worker) {
	name := w.Name()
	if _, exists := r.workers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.workers[name] = w
}

// Get returns a worker by name.
func (r *Registry) Get(name string) (Worker, error) {
	w, ok := r.workers[name]
	if !ok {
		return nil, eris.Errorf("worker: unknown worker %q", name)
	}
	return w, nil
}

// Names returns all registered worker names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Covers verifies that every spec in the roster has a registered
// implementation.
func (r *Registry) Covers(roster *Roster) error {
	for _, spec := range roster.AllSpecs() {
		if _, ok := r.workers[spec.Name]; !ok {
			return eris.Errorf("worker: roster names %q but no implementation is registered", spec.Name)
		}
	}
	return nil
}
