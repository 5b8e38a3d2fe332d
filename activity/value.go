// Copyright (c) Microsoft. All rights reserved.

package activity

import (
	"encoding/json"
	"maps"
)

// ValueKind identifies the shape of an activity's value payload.
type ValueKind string

const (
	ValueKindAdaptiveCardInvoke  ValueKind = "adaptiveCardInvoke"
	ValueKindTokenExchangeInvoke ValueKind = "tokenExchangeInvoke"
	ValueKindVerifyState         ValueKind = "verifyState"
	ValueKindInvokeResponse      ValueKind = "invokeResponse"
	ValueKindObject              ValueKind = "object"
	ValueKindRaw                 ValueKind = "raw"
)

// Invoke names whose value payload has a known shape.
const (
	InvokeNameAdaptiveCardAction  = "adaptiveCard/action"
	InvokeNameSignInTokenExchange = "signin/tokenExchange"
	InvokeNameSignInVerifyState   = "signin/verifyState"
)

// Value is a sealed interface over the payloads an [Activity] may carry in
// its value field. Use a type switch to inspect the concrete type.
type Value interface {
	Kind() ValueKind

	sealed()
}

type valueBase struct{}

func (valueBase) sealed() {}

// AdaptiveCardAction is the action submitted from an Adaptive Card.
type AdaptiveCardAction struct {
	Type string         `json:"type"`
	ID   string         `json:"id,omitempty"`
	Verb string         `json:"verb,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// AdaptiveCardInvokeValue is the value of an adaptiveCard/action invoke.
type AdaptiveCardInvokeValue struct {
	valueBase
	Action AdaptiveCardAction `json:"action"`
	State  string             `json:"state,omitempty"`
}

func (*AdaptiveCardInvokeValue) Kind() ValueKind { return ValueKindAdaptiveCardInvoke }

// TokenExchangeInvokeValue is the value of a signin/tokenExchange invoke.
type TokenExchangeInvokeValue struct {
	valueBase
	ID             string `json:"id"`
	ConnectionName string `json:"connectionName"`
	Token          string `json:"token"`
}

func (*TokenExchangeInvokeValue) Kind() ValueKind { return ValueKindTokenExchangeInvoke }

// VerifyStateValue is the value of a signin/verifyState invoke.
type VerifyStateValue struct {
	valueBase
	State string `json:"state"`
}

func (*VerifyStateValue) Kind() ValueKind { return ValueKindVerifyState }

// InvokeResponseValue is the status and body returned to the channel for an
// invoke activity.
type InvokeResponseValue struct {
	valueBase
	Status int `json:"status"`
	Body   any `json:"body,omitempty"`
}

func (*InvokeResponseValue) Kind() ValueKind { return ValueKindInvokeResponse }

// ObjectValue is a JSON object with no more specific type.
type ObjectValue struct {
	valueBase
	Fields map[string]any
}

func (*ObjectValue) Kind() ValueKind { return ValueKindObject }

// RawValue holds any other JSON value (strings, numbers, arrays) verbatim.
type RawValue struct {
	valueBase
	JSON json.RawMessage
}

func (*RawValue) Kind() ValueKind { return ValueKindRaw }

// cloneValue returns a copy of v that shares no maps with v.
func cloneValue(v Value) Value {
	switch t := v.(type) {
	case nil:
		return nil
	case *VerifyStateValue:
		c := *t
		return &c
	case *TokenExchangeInvokeValue:
		c := *t
		return &c
	case *RawValue:
		return &RawValue{JSON: append(json.RawMessage(nil), t.JSON...)}
	case *ObjectValue:
		b, err := json.Marshal(t.Fields)
		if err != nil {
			return &ObjectValue{Fields: maps.Clone(t.Fields)}
		}
		var fields map[string]any
		if err := json.Unmarshal(b, &fields); err != nil {
			return &ObjectValue{Fields: maps.Clone(t.Fields)}
		}
		return &ObjectValue{Fields: fields}
	case *AdaptiveCardInvokeValue:
		c := *t
		c.Action.Data = maps.Clone(t.Action.Data)
		return &c
	case *InvokeResponseValue:
		c := *t
		return &c
	default:
		return v
	}
}
