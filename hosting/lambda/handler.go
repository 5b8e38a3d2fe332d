// Copyright (c) Microsoft. All rights reserved.

// Package lambda serves the messages endpoint from AWS Lambda behind API
// Gateway.
//
//	h := lambda.NewHandler(hosting.NewMessagesHandler(adapter, agent))
//	awslambda.Start(h.Handle)
package lambda

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/microsoft/agents-sdk/go/hosting"
)

// Handler converts API Gateway proxy events to messages endpoint requests.
type Handler struct {
	messages *hosting.MessagesHandler
}

// NewHandler wraps messages.
func NewHandler(messages *hosting.MessagesHandler) *Handler {
	return &Handler{messages: messages}
}

// Handle processes one API Gateway proxy request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return respond(http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"}), nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return respond(http.StatusBadRequest, map[string]string{"error": "malformed body"}), nil
		}
		body = decoded
	}

	res := h.messages.Handle(ctx, headers(req), body)
	return respond(res.Status, res.Body), nil
}

func headers(req events.APIGatewayProxyRequest) http.Header {
	h := http.Header{}
	for k, vs := range req.MultiValueHeaders {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	for k, v := range req.Headers {
		if h.Get(k) == "" {
			h.Set(k, v)
		}
	}
	return h
}

func respond(status int, v any) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{StatusCode: status}
	if v == nil {
		return resp
	}
	b, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}
	}
	resp.Headers = map[string]string{"Content-Type": "application/json"}
	resp.Body = string(b)
	return resp
}
