// Package plugin defines the nodes of a test plan and the driver that runs
// them. Every plugin carries a fixed Category which decides where it is
// attached under its parent and when the driver runs it.
package plugin

import (
	"context"

	"go.uber.org/zap"

	lhttp "github.com/wesleyorama2/lunge-worker/internal/http"
	"github.com/wesleyorama2/lunge-worker/internal/params"
)

// Category is the static kind of a plugin.
type Category int

const (
	Controller Category = iota
	Configuration
	Parameter
	Preprocessor
	Request
	Timer
	Assertion
	Postprocessor
)

// String returns the category name
func (c Category) String() string {
	switch c {
	case Controller:
		return "controller"
	case Configuration:
		return "configuration"
	case Parameter:
		return "parameter"
	case Preprocessor:
		return "preprocessor"
	case Request:
		return "request"
	case Timer:
		return "timer"
	case Assertion:
		return "assertion"
	case Postprocessor:
		return "postprocessor"
	default:
		return "unknown"
	}
}

// Slot identifies one of the five ordered child lists of a plugin.
type Slot int

const (
	SlotConfiguration Slot = iota
	SlotPreprocessor
	SlotCommon
	SlotAssertion
	SlotPostprocessor
)

// Slot returns the child list a plugin of this category is attached to.
func (c Category) Slot() Slot {
	switch c {
	case Configuration, Parameter:
		return SlotConfiguration
	case Preprocessor:
		return SlotPreprocessor
	case Assertion:
		return SlotAssertion
	case Postprocessor:
		return SlotPostprocessor
	default:
		return SlotCommon
	}
}

// Node is one element of a test plan document. It is a read-only template
// shared by every virtual user.
type Node struct {
	ID       int64   `json:"id"`
	TypeID   int     `json:"originalId"`
	Title    string  `json:"title"`
	Desc     string  `json:"desc"`
	Enabled  bool    `json:"status"`
	Value    string  `json:"value"`
	Children []*Node `json:"children,omitempty"`
}

// Plugin is a runtime instance of a Node owned by a single virtual user.
type Plugin interface {
	// Core returns the state common to all plugins.
	Core() *Base

	// Category returns the static kind of the plugin.
	Category() Category

	// Validate checks the raw node configuration without resolving
	// parameters.
	Validate() error

	// Prepare parses the parameter-substituted configuration for the
	// current iteration.
	Prepare(raw string) error

	// Execute performs the plugin's own effect.
	Execute(ctx context.Context) error
}

// InitLogger receives the human readable lines of a task's init log.
type InitLogger interface {
	Info(msg string)
	Error(msg string)
}

// RunLogger receives one entry per request execution.
type RunLogger interface {
	Put(e *Entry)
}

// Worker identifies the worker executing a task.
type Worker struct {
	ID   int
	UUID string
}

// Env is the task-scoped context shared by every plugin instance of a task.
type Env struct {
	TaskID       int64
	VirtualUsers int
	FilePath     string
	Worker       Worker

	Store   *params.Store
	Shared  *Shared
	InitLog InitLogger
	RunLog  RunLogger
	HTTP    *lhttp.Client
	Logger  *zap.Logger
}

func (e *Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Children holds the child plugins of a node grouped by slot, each in
// declaration order.
type Children struct {
	Configuration []Plugin
	Preprocessor  []Plugin
	Common        []Plugin
	Assertion     []Plugin
	Postprocessor []Plugin
}

// Base is embedded by every plugin implementation.
type Base struct {
	node     *Node
	env      *Env
	vu       int
	parent   Plugin
	children Children
	entry    *Entry
}

// NewBase creates the common state for a plugin built from node for the
// given virtual user. The template build uses vu 0.
func NewBase(node *Node, env *Env, vu int) Base {
	return Base{node: node, env: env, vu: vu}
}

// Core returns b itself so embedding types satisfy Plugin.
func (b *Base) Core() *Base { return b }

// Node returns the template node
func (b *Base) Node() *Node { return b.node }

// Env returns the task environment
func (b *Base) Env() *Env { return b.env }

// VU returns the owning virtual user index
func (b *Base) VU() int { return b.vu }

// Parent returns the plugin this one is attached to, or nil for the root.
func (b *Base) Parent() Plugin { return b.parent }

// Children returns the grouped child lists.
func (b *Base) Children() *Children { return &b.children }

// Entry returns the log entry of the current iteration of a request plugin.
func (b *Base) Entry() *Entry { return b.entry }

// Attach appends child to the parent list matching the child's category.
func Attach(parent, child Plugin) {
	child.Core().parent = parent

	c := &parent.Core().children
	switch child.Category().Slot() {
	case SlotConfiguration:
		c.Configuration = append(c.Configuration, child)
	case SlotPreprocessor:
		c.Preprocessor = append(c.Preprocessor, child)
	case SlotAssertion:
		c.Assertion = append(c.Assertion, child)
	case SlotPostprocessor:
		c.Postprocessor = append(c.Postprocessor, child)
	default:
		c.Common = append(c.Common, child)
	}
}
