// Package params holds the task-scoped parameter store, the tabular
// iterators that feed it, and the ${...} substitution engine that resolves
// plugin configuration text against it.
package params

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Resource is an opaque handle held by the store, such as a database or
// cache connection pool. Resources are looked up by name but never
// substituted into text.
type Resource interface {
	Close() error
}

// Store is the task-scoped registry of named values. Writes are
// last-writer-wins; there are no transactional semantics.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]any)}
}

// Get returns the value stored under name.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set stores a single value.
func (s *Store) Set(name string, v any) {
	s.mu.Lock()
	s.values[name] = v
	s.mu.Unlock()
}

// Update merges values into the store, overwriting on conflict.
func (s *Store) Update(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
}

// PerUser returns the PerUser value stored under name, creating and storing
// an empty one if name is missing or holds some other kind of value.
func (s *Store) PerUser(name string) *PerUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pu, ok := s.values[name].(*PerUser); ok {
		return pu
	}
	pu := NewPerUser()
	s.values[name] = pu
	return pu
}

// Names returns the stored names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Close closes every Resource held by the store. A resource stored under
// several names is closed once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	closed := make(map[Resource]bool)
	for name, v := range s.values {
		r, ok := v.(Resource)
		if !ok || closed[r] {
			continue
		}
		closed[r] = true
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// PerUser maps a virtual-user index to the last value captured for that
// user.
type PerUser struct {
	mu     sync.RWMutex
	values map[int]any
}

// NewPerUser creates an empty PerUser value.
func NewPerUser() *PerUser {
	return &PerUser{values: make(map[int]any)}
}

// Put records v as the latest value for the virtual user.
func (p *PerUser) Put(vu int, v any) {
	p.mu.Lock()
	p.values[vu] = v
	p.mu.Unlock()
}

// Get returns the latest value captured for the virtual user.
func (p *PerUser) Get(vu int) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[vu]
	return v, ok
}
