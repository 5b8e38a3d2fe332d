// Copyright (c) Microsoft. All rights reserved.

package agents

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrAgents is the base error for failures raised by this module.
	ErrAgents = errors.New("agents error")

	// ErrConflict indicates an optimistic concurrency check failed.
	ErrConflict = fmt.Errorf("%w: conflict", ErrAgents)

	// ErrNotFound indicates a named dialog, connection or route does not exist.
	ErrNotFound = fmt.Errorf("%w: not found", ErrAgents)

	// ErrTransient indicates an outbound call failed in a way that may succeed
	// on retry.
	ErrTransient = fmt.Errorf("%w: transient", ErrAgents)

	// ErrRetriesExhausted is returned by [Retry] when every attempt failed.
	ErrRetriesExhausted = fmt.Errorf("%w: retries exhausted", ErrTransient)

	// ErrHandler indicates a route or turn handler returned an error.
	ErrHandler = fmt.Errorf("%w: handler", ErrAgents)

	// ErrAuth indicates an authentication or authorization failure.
	ErrAuth = fmt.Errorf("%w: authentication", ErrAgents)

	// ErrAdapter indicates the adapter could not deliver an activity.
	ErrAdapter = fmt.Errorf("%w: adapter", ErrAgents)
)

// HandlerError wraps a failure raised by a turn handler.
// Use errors.As to extract it from a wrapped error chain.
type HandlerError struct {
	Handler string
	Err     error
}

func (e *HandlerError) Error() string {
	if e.Handler == "" {
		return fmt.Sprintf("turn handler failed: %v", e.Err)
	}
	return fmt.Sprintf("handler %q failed: %v", e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func (e *HandlerError) Is(target error) bool { return target == ErrHandler }
