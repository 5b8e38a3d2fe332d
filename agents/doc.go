// Copyright (c) Microsoft. All rights reserved.

// Package agents provides the turn abstractions shared by every agent host:
// the [TurnContext] given to each turn, the [Adapter] that delivers outbound
// activities, and the [Middleware] pipeline that wraps each turn.
//
// # Turns
//
// An adapter creates a TurnContext for each inbound activity and runs the
// middleware set followed by the agent:
//
//	var mws agents.MiddlewareSet
//	mws.Use(agents.LoggingMiddleware(logger))
//
//	err := mws.ReceiveActivity(ctx, tc, agent.OnTurn)
//
// # Send pipeline
//
// Outbound activities are addressed from the inbound conversation and then
// passed through the interceptors registered with
// [TurnContext.OnSendActivities], in registration order. An interceptor that
// does not call next suppresses the send. Update and delete have equivalent
// pipelines.
//
// For expectReplies turns, replies are buffered on the turn instead of being
// sent; the host returns them in the HTTP response. Invoke responses are
// recorded on the turn and returned by the host as the invoke result.
//
// # Errors
//
// All sentinel errors wrap [ErrAgents]. Use errors.Is to test for
// [ErrConflict], [ErrNotFound], [ErrTransient] or [ErrAuth].
package agents
