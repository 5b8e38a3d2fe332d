// Copyright (c) Microsoft. All rights reserved.

// Package app provides [AgentApplication], an [agents.Agent] that routes each
// turn to registered handlers.
//
// # Routing
//
// Invoke routes are tried before all other routes. Within each group routes
// are tried in ascending rank, and routes of equal rank in the order they
// were registered. In [FirstMatch] mode, every matching non-exclusive route
// runs but only the first matching exclusive route does. An invoke no
// route handles is answered with status 501.
//
// Routes are fixed once the application handles its first turn.
//
// # Turn pipeline
//
// Each turn loads user and conversation state, runs the before-turn hooks,
// dispatches, runs the after-turn hooks and saves state. If any step fails
// the save is skipped, the turn error handler runs, and the error is
// returned to the host.
package app
