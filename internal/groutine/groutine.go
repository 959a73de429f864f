// Package groutine starts goroutines carrying a name in their context and in
// their pprof labels, so profiles and logs can tell the radio workers apart.
package groutine

import (
	"context"
	"runtime/pprof"

	"golang.org/x/sync/errgroup"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn in a goroutine labelled name.
//
//	groutine.Go(ctx, "scan-pump", func(ctx context.Context) {
//	    // work
//	})
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	go run(parentCtx, name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Group is an errgroup whose goroutines are named like the ones started by Go.
// The first error cancels the group context.
type Group struct {
	g   *errgroup.Group
	ctx context.Context
}

// WithContext creates a Group derived from ctx.
func WithContext(ctx context.Context) (*Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	return &Group{g: g, ctx: gctx}, gctx
}

// Go runs fn in a goroutine labelled name.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.g.Go(func() error {
		return run(g.ctx, name, fn)
	})
}

// Wait blocks until every goroutine returned and yields the first error.
func (g *Group) Wait() error {
	return g.g.Wait()
}

func run(parent context.Context, name string, fn func(ctx context.Context) error) error {
	var err error
	pprof.Do(parent, pprof.Labels("goroutine_name", name), func(ctx context.Context) {
		err = fn(context.WithValue(ctx, goroutineNameKey, name))
	})
	return err
}
