// Copyright (c) Microsoft. All rights reserved.

package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/state"
)

// Route ranks. Lower ranks are tried first.
const (
	RankFirst       = 0
	RankUnspecified = 32767
	RankLast        = 65535
)

var (
	// ErrInvalidRoute is returned by [RouteBuilder.Build] for incomplete routes.
	ErrInvalidRoute = fmt.Errorf("%w: invalid route", agents.ErrAgents)

	// ErrInvokeDemotion is returned when a route marked as invoke is marked
	// as non-invoke afterwards.
	ErrInvokeDemotion = fmt.Errorf("%w: invoke route cannot be made non-invoke", ErrInvalidRoute)

	// ErrRoutesSealed is returned when routes are registered after the
	// application has handled its first turn.
	ErrRoutesSealed = errors.New("app: routes cannot change after the first turn")
)

// RouteSelector reports whether a route applies to the turn. Selectors must
// not have side effects; they may run for routes that are not taken.
type RouteSelector func(ctx context.Context, tc *agents.TurnContext) (bool, error)

// RouteHandler handles a turn selected by a route.
type RouteHandler func(ctx context.Context, tc *agents.TurnContext, ts *state.TurnState) error

// Route binds a selector to a handler.
type Route struct {
	Selector RouteSelector
	Handler  RouteHandler

	// Rank orders routes within the invoke and non-invoke groups.
	Rank int
	// IsInvoke routes only match invoke activities and are tried before all
	// other routes.
	IsInvoke bool
	// NonExclusive routes let dispatch continue after they run.
	NonExclusive bool
	// Label names the route in logs and errors.
	Label string
}

func (r Route) matches(ctx context.Context, tc *agents.TurnContext) (bool, error) {
	if r.IsInvoke && !tc.Activity().IsType(activity.TypeInvoke) {
		return false, nil
	}
	return r.Selector(ctx, tc)
}

// RouteBuilder assembles a [Route].
//
//	route, err := app.NewRoute().
//		WithSelector(app.EventName("refresh")).
//		WithHandler(onRefresh).
//		WithRank(app.RankFirst).
//		Build()
type RouteBuilder struct {
	route Route
	err   error
}

// NewRoute starts a route with [RankUnspecified].
func NewRoute() *RouteBuilder {
	return &RouteBuilder{route: Route{Rank: RankUnspecified}}
}

// WithSelector sets the selector.
func (b *RouteBuilder) WithSelector(s RouteSelector) *RouteBuilder {
	b.route.Selector = s
	return b
}

// WithHandler sets the handler.
func (b *RouteBuilder) WithHandler(h RouteHandler) *RouteBuilder {
	b.route.Handler = h
	return b
}

// WithRank sets the rank, which must be within [RankFirst, RankLast].
func (b *RouteBuilder) WithRank(rank int) *RouteBuilder {
	if rank < RankFirst || rank > RankLast {
		b.setErr(fmt.Errorf("%w: rank %d out of range", ErrInvalidRoute, rank))
		return b
	}
	b.route.Rank = rank
	return b
}

// WithLabel names the route.
func (b *RouteBuilder) WithLabel(label string) *RouteBuilder {
	b.route.Label = label
	return b
}

// AsInvoke marks the route as an invoke route.
func (b *RouteBuilder) AsInvoke() *RouteBuilder {
	b.route.IsInvoke = true
	return b
}

// AsNonInvoke marks the route as a non-invoke route. It fails the build if
// the route was already marked as invoke.
func (b *RouteBuilder) AsNonInvoke() *RouteBuilder {
	if b.route.IsInvoke {
		b.setErr(ErrInvokeDemotion)
	}
	return b
}

// NonExclusive lets dispatch continue to later routes after this one runs.
func (b *RouteBuilder) NonExclusive() *RouteBuilder {
	b.route.NonExclusive = true
	return b
}

// Build returns the route or the first error recorded while building it.
func (b *RouteBuilder) Build() (Route, error) {
	if b.err != nil {
		return Route{}, b.err
	}
	if b.route.Selector == nil {
		return Route{}, fmt.Errorf("%w: selector is required", ErrInvalidRoute)
	}
	if b.route.Handler == nil {
		return Route{}, fmt.Errorf("%w: handler is required", ErrInvalidRoute)
	}
	return b.route, nil
}

func (b *RouteBuilder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// RouteOption adjusts a route registered through the On* helpers.
type RouteOption func(*RouteBuilder)

// WithRank sets the rank of a registered route.
func WithRank(rank int) RouteOption {
	return func(b *RouteBuilder) { b.WithRank(rank) }
}

// WithLabel names a registered route.
func WithLabel(label string) RouteOption {
	return func(b *RouteBuilder) { b.WithLabel(label) }
}

// WithNonExclusive marks a registered route as non-exclusive.
func WithNonExclusive() RouteOption {
	return func(b *RouteBuilder) { b.NonExclusive() }
}

// sortRoutes orders invoke routes first, then by ascending rank. Routes with
// equal rank keep their registration order.
func sortRoutes(routes []Route) []Route {
	out := slices.Clone(routes)
	slices.SortStableFunc(out, func(a, b Route) int {
		if a.IsInvoke != b.IsInvoke {
			if a.IsInvoke {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Rank, b.Rank)
	})
	return out
}
