// Copyright (c) Microsoft. All rights reserved.

package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/authentication"
)

const defaultUserAgent = "agents-sdk-go"

// httpTransport sends one JSON request to a channel service.
type httpTransport struct {
	client    *http.Client
	tokens    authentication.TokenProvider
	resource  string
	userAgent string
	logger    *slog.Logger
}

func newHTTPTransport(cfg *clientConfig) *httpTransport {
	t := &httpTransport{
		client:    cfg.httpClient,
		tokens:    cfg.tokens,
		resource:  cfg.resource,
		userAgent: cfg.userAgent,
		logger:    cfg.logger,
	}
	if t.client == nil {
		t.client = http.DefaultClient
	}
	if t.tokens == nil {
		t.tokens = authentication.AnonymousTokenProvider{}
	}
	if t.resource == "" {
		t.resource = agents.ChannelServiceAudience
	}
	if t.userAgent == "" {
		t.userAgent = defaultUserAgent
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// do sends body to serviceURL+path. A nil out discards the response body.
func (t *httpTransport) do(ctx context.Context, method, serviceURL, path string, body []byte, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	url := strings.TrimSuffix(serviceURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", t.userAgent)

	token, err := t.tokens.GetAccessToken(ctx, t.resource, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	t.logger.DebugContext(ctx, "channel request", slog.String("method", method), slog.String("url", url))
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: http request: %w", agents.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode response: %w", ErrService, err)
	}
	return nil
}

// parseErrorResponse reads an error response body and returns a typed error.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)

	msg := apiErr.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	svcErr := &ServiceError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Code:       apiErr.Error.Code,
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		svcErr.Err = agents.ErrTransient
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		svcErr.Err = agents.ErrAuth
	case resp.StatusCode == http.StatusNotFound:
		svcErr.Err = agents.ErrNotFound
	default:
		svcErr.Err = ErrService
	}

	return svcErr
}
