// Copyright (c) Microsoft. All rights reserved.

package agents

import "context"

// NextDelegate continues the middleware pipeline.
type NextDelegate func(ctx context.Context) error

// Middleware runs around every turn. It should call next to continue the
// chain, or return early to short-circuit.
type Middleware interface {
	OnTurn(ctx context.Context, tc *TurnContext, next NextDelegate) error
}

// MiddlewareFunc adapts a function to the [Middleware] interface.
type MiddlewareFunc func(ctx context.Context, tc *TurnContext, next NextDelegate) error

func (f MiddlewareFunc) OnTurn(ctx context.Context, tc *TurnContext, next NextDelegate) error {
	return f(ctx, tc, next)
}

// MiddlewareSet is an ordered list of middleware.
type MiddlewareSet struct {
	items []Middleware
}

// Use appends middleware. The first added runs outermost.
func (s *MiddlewareSet) Use(mws ...Middleware) *MiddlewareSet {
	s.items = append(s.items, mws...)
	return s
}

// Len returns the number of registered middleware.
func (s *MiddlewareSet) Len() int { return len(s.items) }

// ReceiveActivity runs the middleware chain and then handler.
func (s *MiddlewareSet) ReceiveActivity(ctx context.Context, tc *TurnContext, handler TurnHandler) error {
	return chainMiddleware(handler, s.items...)(ctx, tc)
}

// chainMiddleware applies middleware in order (first in list = outermost wrapper).
func chainMiddleware(handler TurnHandler, mws ...Middleware) TurnHandler {
	if handler == nil {
		handler = func(context.Context, *TurnContext) error { return nil }
	}
	for i := len(mws) - 1; i >= 0; i-- {
		mw, next := mws[i], handler
		handler = func(ctx context.Context, tc *TurnContext) error {
			return mw.OnTurn(ctx, tc, func(ctx context.Context) error { return next(ctx, tc) })
		}
	}
	return handler
}
