package device

import (
	"sort"
	"strings"
)

// Registry maps lower-cased class names to classes. It is populated once at
// startup and only read afterwards.
type Registry struct {
	classes map[string]Class
	order   []string
}

// NewRegistry registers the given classes in order. A later class with the
// same name replaces an earlier one.
func NewRegistry(classes ...Class) *Registry {
	r := &Registry{classes: make(map[string]Class, len(classes))}
	for _, c := range classes {
		key := strings.ToLower(c.Name())
		if _, exists := r.classes[key]; !exists {
			r.order = append(r.order, key)
		}
		r.classes[key] = c
	}
	return r
}

// Lookup resolves a class by name, ignoring case.
func (r *Registry) Lookup(name string) (Class, error) {
	if c, ok := r.classes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c, nil
	}
	return nil, &UnknownClassError{Name: name, Valid: r.sortedNames()}
}

// Names returns the registered class names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Classes returns the registered classes in registration order.
func (r *Registry) Classes() []Class {
	out := make([]Class, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.classes[name])
	}
	return out
}

func (r *Registry) sortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}
