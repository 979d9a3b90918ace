package plugin

import (
	"errors"
	"fmt"
)

// ErrUnknownType is returned for nodes whose type id has no registered
// factory.
var ErrUnknownType = errors.New("unsupported plugin type")

// ValidationError reports a node that failed its static check.
type ValidationError struct {
	NodeID int64
	Title  string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plugin %q (id %d): %v", e.Title, e.NodeID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// FatalError reports a failure that must terminate the whole task, such as
// a configuration plugin whose resolved config no longer parses.
type FatalError struct {
	NodeID int64
	Title  string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("plugin %q (id %d) failed: %v", e.Title, e.NodeID, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(p Plugin, err error) *FatalError {
	n := p.Core().Node()
	return &FatalError{NodeID: n.ID, Title: n.Title, Err: err}
}
