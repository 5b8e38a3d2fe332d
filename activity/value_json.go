// Copyright (c) Microsoft. All rights reserved.

package activity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// activityAlias drops the methods of Activity so the default encoder can be
// reused for every field except value.
type activityAlias Activity

// MarshalJSON encodes the activity, emitting value from its typed variant.
func (a Activity) MarshalJSON() ([]byte, error) {
	raw, err := MarshalValueJSON(a.Value)
	if err != nil {
		return nil, fmt.Errorf("marshal activity value: %w", err)
	}
	return json.Marshal(struct {
		activityAlias
		Value json.RawMessage `json:"value,omitempty"`
	}{activityAlias(a), raw})
}

// UnmarshalJSON decodes the activity and selects the value variant from the
// activity type and name.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var wire struct {
		activityAlias
		Value json.RawMessage `json:"value,omitempty"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*a = Activity(wire.activityAlias)
	v, err := UnmarshalValueJSON(a.Type, a.Name, wire.Value)
	if err != nil {
		return fmt.Errorf("unmarshal activity value: %w", err)
	}
	a.Value = v
	return nil
}

// MarshalValueJSON encodes a value payload. A nil value encodes to nil.
func MarshalValueJSON(v Value) (json.RawMessage, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *AdaptiveCardInvokeValue:
		return json.Marshal(struct {
			Action AdaptiveCardAction `json:"action"`
			State  string             `json:"state,omitempty"`
		}{t.Action, t.State})
	case *TokenExchangeInvokeValue:
		return json.Marshal(struct {
			ID             string `json:"id"`
			ConnectionName string `json:"connectionName"`
			Token          string `json:"token"`
		}{t.ID, t.ConnectionName, t.Token})
	case *VerifyStateValue:
		return json.Marshal(struct {
			State string `json:"state"`
		}{t.State})
	case *InvokeResponseValue:
		return json.Marshal(struct {
			Status int `json:"status"`
			Body   any `json:"body,omitempty"`
		}{t.Status, t.Body})
	case *ObjectValue:
		if t.Fields == nil {
			return json.RawMessage("{}"), nil
		}
		return json.Marshal(t.Fields)
	case *RawValue:
		if len(t.JSON) == 0 {
			return nil, nil
		}
		return t.JSON, nil
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// UnmarshalValueJSON decodes a value payload for an activity of the given type
// and name. Empty input and JSON null yield a nil Value. Payloads that do not
// match a known shape fall back to [ObjectValue] or [RawValue].
func UnmarshalValueJSON(typ Type, name string, data json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch {
	case typ == TypeInvoke && name == InvokeNameAdaptiveCardAction:
		var v struct {
			Action AdaptiveCardAction `json:"action"`
			State  string             `json:"state"`
		}
		if err := json.Unmarshal(trimmed, &v); err == nil && v.Action.Type != "" {
			return &AdaptiveCardInvokeValue{Action: v.Action, State: v.State}, nil
		}

	case typ == TypeInvoke && name == InvokeNameSignInTokenExchange:
		var v struct {
			ID             string `json:"id"`
			ConnectionName string `json:"connectionName"`
			Token          string `json:"token"`
		}
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return &TokenExchangeInvokeValue{ID: v.ID, ConnectionName: v.ConnectionName, Token: v.Token}, nil
		}

	case typ == TypeInvoke && name == InvokeNameSignInVerifyState:
		var v struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return &VerifyStateValue{State: v.State}, nil
		}

	case typ == TypeInvokeResponse:
		var v struct {
			Status int             `json:"status"`
			Body   json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(trimmed, &v); err == nil && v.Status != 0 {
			var body any
			if len(v.Body) > 0 {
				if err := json.Unmarshal(v.Body, &body); err != nil {
					return nil, err
				}
			}
			return &InvokeResponseValue{Status: v.Status, Body: body}, nil
		}
	}

	if trimmed[0] == '{' {
		var fields map[string]any
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, err
		}
		return &ObjectValue{Fields: fields}, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("invalid value JSON")
	}
	return &RawValue{JSON: append(json.RawMessage(nil), trimmed...)}, nil
}
