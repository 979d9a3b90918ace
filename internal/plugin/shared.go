package plugin

import (
	"fmt"
	"sync"
)

// Shared memoizes task-wide singletons such as connection pools and data
// set iterators. Every virtual user tree of a task holds the same Shared,
// so the first execution creates the value and later ones reuse it.
type Shared struct {
	mu    sync.Mutex
	calls map[string]*sharedCall
}

type sharedCall struct {
	once sync.Once
	val  any
	err  error
}

// NewShared creates an empty registry
func NewShared() *Shared {
	return &Shared{calls: make(map[string]*sharedCall)}
}

// Load returns the value stored under key, calling fn to create it on first
// use. Concurrent callers for the same key wait for the single call to fn.
// A failed call is remembered as well.
func (s *Shared) Load(key string, fn func() (any, error)) (any, error) {
	s.mu.Lock()
	c, ok := s.calls[key]
	if !ok {
		c = &sharedCall{}
		s.calls[key] = c
	}
	s.mu.Unlock()

	c.once.Do(func() {
		c.val, c.err = fn()
	})
	return c.val, c.err
}

// Do is Load for side-effect only initializers.
func (s *Shared) Do(key string, fn func() error) error {
	_, err := s.Load(key, func() (any, error) {
		return nil, fn()
	})
	return err
}

func nodeKey(n *Node) string {
	return fmt.Sprintf("node:%d", n.ID)
}
