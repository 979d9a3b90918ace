package plugin

import "context"

// Group is a controller plugin. It has no effect of its own; the driver
// runs its children. TestTask, TestCaseCollection and TestCase are all
// groups.
type Group struct {
	Base
}

func newGroup(b Base) Plugin { return &Group{Base: b} }

func (g *Group) Category() Category { return Controller }

func (g *Group) Validate() error { return nil }

func (g *Group) Prepare(string) error { return nil }

func (g *Group) Execute(context.Context) error { return nil }
