package schema

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Registry is an explicit name → schema mapping built at startup and passed
// into the pipeline. It is immutable after construction.
type Registry struct {
	byName map[string]Schema
	names  []string
}

// NewRegistry builds a registry from the given schemas. Each schema is
// validated; duplicate names are rejected.
func NewRegistry(schemas ...Schema) (*Registry, error) {
	r := &Registry{byName: make(map[string]Schema, len(schemas))}
	for _, s := range schemas {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.byName[s.Name]; exists {
			return nil, eris.Errorf("schema registry: duplicate schema %q", s.Name)
		}
		r.byName[s.Name] = s
		r.names = append(r.names, s.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the schema with the given name.
func (r *Registry) Get(name string) (Schema, error) {
	s, ok := r.byName[name]
	if !ok {
		return Schema{}, eris.Errorf("schema registry: unknown schema %q", name)
	}
	return s, nil
}

// Names returns all registered schema names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
