// Package tree turns the static plugin node document of a task into typed
// plugin instance trees, one per virtual user.
package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wesleyorama2/lunge-worker/internal/plugin"
)

// DocumentName is the file holding the plugin nodes inside a task bundle.
const DocumentName = "task.json"

// Result reports the outcome of a build.
type Result struct {
	OK       bool
	Failures []string
	Nodes    int
}

// Builder instantiates plugin trees from a registry.
type Builder struct {
	registry *plugin.Registry
}

// NewBuilder creates a builder backed by registry. A nil registry uses
// plugin.DefaultRegistry.
func NewBuilder(registry *plugin.Registry) *Builder {
	if registry == nil {
		registry = plugin.DefaultRegistry()
	}
	return &Builder{registry: registry}
}

// Build instantiates node and its enabled descendants depth first for the
// virtual user vu. Every node is validated as it is built; a failing or
// unknown node marks the result failed and the build carries on with its
// siblings so every problem is reported at once.
//
// vu 0 is the template build used for validation. It writes one init log
// line per node; builds for real virtual users are silent.
func (b *Builder) Build(node *plugin.Node, env *plugin.Env, vu int) (plugin.Plugin, Result) {
	res := Result{OK: true}
	template := vu == 0

	if template {
		info(env, "building plugin tree")
	}
	root := b.build(node, env, vu, &res)
	if template {
		info(env, "plugin tree built")
	}
	if root == nil && res.OK {
		res.OK = false
		res.Failures = append(res.Failures, "root plugin is disabled")
	}
	return root, res
}

// Build is Builder.Build with the default registry.
func Build(node *plugin.Node, env *plugin.Env, vu int) (plugin.Plugin, Result) {
	return NewBuilder(nil).Build(node, env, vu)
}

func (b *Builder) build(node *plugin.Node, env *plugin.Env, vu int, res *Result) plugin.Plugin {
	if node == nil || !node.Enabled {
		return nil
	}
	template := vu == 0

	factory, _, ok := b.registry.Lookup(node.TypeID)
	if !ok {
		res.fail(node, plugin.ErrUnknownType)
		if template {
			errorf(env, "plugin '%s' initialization result: failed, %v", node.Title, plugin.ErrUnknownType)
		}
		return nil
	}

	p := factory(plugin.NewBase(node, env, vu))
	res.Nodes++
	if err := p.Validate(); err != nil {
		res.fail(node, err)
		if template {
			errorf(env, "plugin '%s' initialization result: failed, %v", node.Title, err)
		}
	} else if template {
		infof(env, "plugin '%s' initialization result: succeeded", node.Title)
	}

	for _, child := range node.Children {
		if c := b.build(child, env, vu, res); c != nil {
			plugin.Attach(p, c)
		}
	}
	return p
}

func (r *Result) fail(node *plugin.Node, err error) {
	r.OK = false
	verr := &plugin.ValidationError{NodeID: node.ID, Title: node.Title, Err: err}
	r.Failures = append(r.Failures, verr.Error())
}

// Err joins the failures of r into one error, or returns nil when the build
// succeeded.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = errors.New(f)
	}
	return errors.Join(errs...)
}

func info(env *plugin.Env, msg string) {
	if env != nil && env.InitLog != nil {
		env.InitLog.Info(msg)
	}
}

func infof(env *plugin.Env, format string, args ...any) {
	info(env, fmt.Sprintf(format, args...))
}

func errorf(env *plugin.Env, format string, args ...any) {
	if env != nil && env.InitLog != nil {
		env.InitLog.Error(fmt.Sprintf(format, args...))
	}
}

// LoadDocument reads the plugin node document of the bundle in dir and
// returns its root node.
func LoadDocument(dir string) (*plugin.Node, error) {
	path := filepath.Join(dir, DocumentName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin document: %w", err)
	}
	return ParseDocument(data)
}

// ParseDocument decodes a plugin node document. The document is an array
// whose first element is the root node.
func ParseDocument(data []byte) (*plugin.Node, error) {
	var nodes []*plugin.Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("failed to parse plugin document: %w", err)
	}
	if len(nodes) == 0 || nodes[0] == nil {
		return nil, fmt.Errorf("plugin document has no root node")
	}
	return nodes[0], nil
}
