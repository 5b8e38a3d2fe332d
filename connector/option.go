// Copyright (c) Microsoft. All rights reserved.

package connector

import (
	"log/slog"
	"net/http"

	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/authentication"
)

// clientConfig holds resolved configuration for a [Client].
type clientConfig struct {
	httpClient *http.Client
	tokens     authentication.TokenProvider
	resource   string
	retry      agents.RetryPolicy
	logger     *slog.Logger
	userAgent  string
}

// Option configures a [Client].
type Option func(*clientConfig)

// WithHTTPClient provides a custom http.Client for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = client }
}

// WithTokenProvider sets the source of bearer tokens. Without one, requests
// are sent unauthenticated.
func WithTokenProvider(p authentication.TokenProvider) Option {
	return func(c *clientConfig) { c.tokens = p }
}

// WithResource sets the resource tokens are requested for. It defaults to
// the channel service audience.
func WithResource(resource string) Option {
	return func(c *clientConfig) { c.resource = resource }
}

// WithRetryPolicy overrides [agents.DefaultRetryPolicy].
func WithRetryPolicy(p agents.RetryPolicy) Option {
	return func(c *clientConfig) { c.retry = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *clientConfig) { c.userAgent = ua }
}
