// Copyright (c) Microsoft. All rights reserved.

package connector

import (
	"fmt"

	"github.com/microsoft/agents-sdk/go/agents"
)

// ErrService is the base error for failures reported by a channel service.
var ErrService = fmt.Errorf("%w: channel service", agents.ErrAdapter)

// ServiceError provides context for a failed channel service call.
// Use errors.As to extract it from a wrapped error chain.
type ServiceError struct {
	StatusCode int
	Message    string
	Code       string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("channel service error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("channel service error %d: %s", e.StatusCode, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }
