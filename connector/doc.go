// Copyright (c) Microsoft. All rights reserved.

// Package connector provides [Client], which delivers activities to a
// channel through its conversations REST API.
//
// Requests carry a bearer token from an [authentication.TokenProvider].
// Throttling (429), server errors and network failures are retried under
// an [agents.RetryPolicy]; other failures are returned as a [*ServiceError]
// immediately.
package connector
