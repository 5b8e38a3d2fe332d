// Copyright (c) Microsoft. All rights reserved.

package agents_test

import (
	"testing"

	"github.com/microsoft/agents-sdk/go/agents"
)

func TestClaimsIdentity(t *testing.T) {
	tests := []struct {
		name        string
		claims      map[string]string
		wantAppID   string
		wantIsAgent bool
	}{
		{
			name:      "v1 channel token",
			claims:    map[string]string{"ver": "1.0", "appid": "channel", "aud": "https://api.botframework.com"},
			wantAppID: "channel",
		},
		{
			name:      "v2 token uses azp",
			claims:    map[string]string{"ver": "2.0", "azp": "caller", "appid": "ignored", "aud": "caller"},
			wantAppID: "caller",
		},
		{
			name:        "agent to agent",
			claims:      map[string]string{"ver": "1.0", "appid": "parent-agent", "aud": "child-agent"},
			wantAppID:   "parent-agent",
			wantIsAgent: true,
		},
		{
			name:      "no version is never an agent claim",
			claims:    map[string]string{"appid": "a", "aud": "b"},
			wantAppID: "a",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id := agents.NewClaimsIdentity(tc.claims)
			if got := id.AppID(); got != tc.wantAppID {
				t.Errorf("AppID() = %q, want %q", got, tc.wantAppID)
			}
			if got := id.IsAgentClaim(); got != tc.wantIsAgent {
				t.Errorf("IsAgentClaim() = %v, want %v", got, tc.wantIsAgent)
			}
		})
	}
}

func TestAnonymousIdentity(t *testing.T) {
	id := agents.AnonymousIdentity()
	if id.IsAuthenticated {
		t.Error("anonymous identity should not be authenticated")
	}
	if id.AuthType != agents.AuthTypeAnonymous {
		t.Errorf("AuthType = %q", id.AuthType)
	}
	if id.AppID() != "" {
		t.Errorf("AppID() = %q, want empty", id.AppID())
	}
}
