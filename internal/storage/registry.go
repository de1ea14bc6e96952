package storage

import (
	"strings"
	"sync"

	"github.com/flasheng/flasheng/internal/domain"
	"github.com/pkg/errors"
)

// Participant a distinct store together with the resources it backs
type Participant struct {
	Store     Store
	Resources []string
}

// Name resource names joined, e.g. "catalog+orders" for a shared store
func (p Participant) Name() string {
	return strings.Join(p.Resources, "+")
}

// Registry maps logical resources to stores. Iteration follows bind order,
// which is also the commit order of a unit of work.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	bindings map[string]Store
}

func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]Store)}
}

// Bind attaches a resource to a store. Binding several resources to one store co-locates them.
func (r *Registry) Bind(resource string, store Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bindings[resource]; !ok {
		r.order = append(r.order, resource)
	}
	r.bindings[resource] = store
}

func (r *Registry) Resolve(resource string) (Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.bindings[resource]
	if !ok {
		return nil, &domain.UnavailableError{Resource: resource, Err: errors.New("resource not bound")}
	}
	return s, nil
}

// Resources bound resource names in bind order
func (r *Registry) Resources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Participants distinct stores backing the given resources, in bind order.
// No resources means every bound resource.
func (r *Registry) Participants(resources ...string) ([]Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[string]bool, len(resources))
	for _, res := range resources {
		if _, ok := r.bindings[res]; !ok {
			return nil, &domain.UnavailableError{Resource: res, Err: errors.New("resource not bound")}
		}
		wanted[res] = true
	}

	var parts []Participant
	index := make(map[Store]int)
	for _, res := range r.order {
		if len(wanted) > 0 && !wanted[res] {
			continue
		}
		s := r.bindings[res]
		if i, ok := index[s]; ok {
			parts[i].Resources = append(parts[i].Resources, res)
			continue
		}
		index[s] = len(parts)
		parts = append(parts, Participant{Store: s, Resources: []string{res}})
	}
	return parts, nil
}

// Colocated reports whether both resources are backed by the same store
func (r *Registry) Colocated(a, b string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sa, ok := r.bindings[a]
	if !ok {
		return false
	}
	sb, ok := r.bindings[b]
	return ok && sa == sb
}

// Stores distinct stores in bind order
func (r *Registry) Stores() []Store {
	parts, _ := r.Participants()
	stores := make([]Store, 0, len(parts))
	for _, p := range parts {
		stores = append(stores, p.Store)
	}
	return stores
}

// Close closes every distinct store, returning the first error
func (r *Registry) Close() error {
	var first error
	for _, s := range r.Stores() {
		if err := s.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close %s", s.Name())
		}
	}
	return first
}
