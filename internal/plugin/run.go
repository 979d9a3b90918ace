package plugin

import (
	"context"
	"fmt"
)

// Run executes p and its children in category order.
//
// A controller runs its configuration and parameter children, then its
// common children. A request runs its preprocessors, prepares, performs the
// call, then runs its assertions and postprocessors and hands the finished
// entry to the run log. Every other plugin prepares and executes; a failure
// there is returned as a *FatalError.
//
// Run returns ctx.Err() once ctx is done.
func Run(ctx context.Context, p Plugin) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch p.Category() {
	case Controller:
		return runController(ctx, p)
	case Request:
		return runRequest(ctx, p)
	default:
		if err := prepare(p); err != nil {
			return fatal(p, err)
		}
		if err := p.Execute(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fatal(p, err)
		}
		return nil
	}
}

func prepare(p Plugin) error {
	b := p.Core()
	raw := b.node.Value
	if b.env != nil && b.env.Store != nil {
		raw = b.env.Store.Substitute(raw, b.vu)
	}
	return p.Prepare(raw)
}

func runController(ctx context.Context, p Plugin) error {
	c := p.Core().Children()
	if err := runAll(ctx, c.Configuration); err != nil {
		return err
	}
	return runAll(ctx, c.Common)
}

func runRequest(ctx context.Context, p Plugin) error {
	b := p.Core()
	e := newEntry(b)
	b.entry = e

	if err := runAll(ctx, b.children.Preprocessor); err != nil {
		return err
	}

	if err := prepare(p); err != nil {
		e.finish()
		e.Fail(-1, fmt.Sprintf("request error: %v;", err))
		putEntry(b, e)
		return nil
	}

	err := p.Execute(ctx)
	e.finish()
	if ctx.Err() != nil {
		// abandoned calls are not logged
		return ctx.Err()
	}
	if err != nil {
		e.Fail(-1, fmt.Sprintf("request error: %v;", err))
	}

	if err := runAll(ctx, b.children.Assertion); err != nil {
		return err
	}
	if err := runAll(ctx, b.children.Postprocessor); err != nil {
		return err
	}

	putEntry(b, e)
	return nil
}

func runAll(ctx context.Context, plugins []Plugin) error {
	for _, child := range plugins {
		if err := Run(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

func putEntry(b *Base, e *Entry) {
	if b.env != nil && b.env.RunLog != nil {
		b.env.RunLog.Put(e)
	}
}
