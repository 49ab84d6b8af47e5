package turn

import (
	"context"
	"errors"
	"sync"
)

// Next continues the middleware chain.
type Next func(ctx context.Context) error

// Middleware runs around every turn. Returning without calling next ends the turn early.
type Middleware interface {
	OnTurn(ctx context.Context, tc *Context, next Next) error
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, tc *Context, next Next) error

// OnTurn calls f.
func (f MiddlewareFunc) OnTurn(ctx context.Context, tc *Context, next Next) error {
	return f(ctx, tc, next)
}

// Pipeline is an ordered middleware set shared by all turns of one adapter.
type Pipeline struct {
	mu         sync.RWMutex
	middleware []Middleware
}

// Use appends middleware to the pipeline.
func (p *Pipeline) Use(middleware ...Middleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range middleware {
		if m != nil {
			p.middleware = append(p.middleware, m)
		}
	}
}

// Run executes middleware in registration order and then logic.
func (p *Pipeline) Run(ctx context.Context, tc *Context, logic Logic) error {
	if tc == nil {
		return errors.New("turn context is required")
	}

	p.mu.RLock()
	chain := append([]Middleware(nil), p.middleware...)
	p.mu.RUnlock()

	var step func(ctx context.Context, index int) error
	step = func(ctx context.Context, index int) error {
		if index == len(chain) {
			if logic == nil {
				return nil
			}
			return logic(ctx, tc)
		}

		return chain[index].OnTurn(ctx, tc, func(ctx context.Context) error {
			return step(ctx, index+1)
		})
	}

	return step(ctx, 0)
}
