// Copyright (c) Microsoft. All rights reserved.

package authentication_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/authentication"
)

type namedProvider string

func (p namedProvider) GetAccessToken(context.Context, string, []string) (string, error) {
	return string(p), nil
}

func fakeFactory(s authentication.ConnectionSettings) (authentication.TokenProvider, error) {
	return namedProvider(s.ClientID), nil
}

func newManager(t *testing.T, entries []authentication.ConnectionMapEntry) *authentication.ConnectionManager {
	t.Helper()
	m, err := authentication.NewConnectionManager(map[string]authentication.ConnectionSettings{
		authentication.ServiceConnectionName: {ClientID: "service", TenantID: "t1"},
		"Teams":                              {ClientID: "teams", TenantID: "t2"},
		"Agent":                              {ClientID: "agent", TenantID: "t1"},
	}, entries, authentication.WithProviderFactory(fakeFactory))
	require.NoError(t, err)
	return m
}

func TestForServiceURL(t *testing.T) {
	m := newManager(t, []authentication.ConnectionMapEntry{
		{ServiceURL: `^https://smba\.`, Connection: "Teams"},
		{ServiceURL: "*", Audience: "agent-aud", Connection: "Agent"},
	})

	tests := []struct {
		name string
		aud  string
		url  string
		want string
	}{
		{"regex match", "", "https://smba.trafficmanager.net/amer/", "teams"},
		{"audience match", "AGENT-AUD", "https://other.example/", "agent"},
		{"fallback", "x", "https://other.example/", "service"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := agents.NewClaimsIdentity(map[string]string{agents.ClaimAudience: tt.aud})
			p, err := m.ForServiceURL(claims, tt.url)
			require.NoError(t, err)
			tok, _ := p.GetAccessToken(context.Background(), "", nil)
			assert.Equal(t, tt.want, tok)
		})
	}
}

func TestConnectionLookup(t *testing.T) {
	m := newManager(t, nil)

	_, err := m.Connection("missing")
	require.ErrorIs(t, err, authentication.ErrConnectionNotFound)
	assert.ErrorIs(t, err, agents.ErrNotFound)

	assert.Equal(t, []string{"Agent", authentication.ServiceConnectionName, "Teams"}, m.Names())
	assert.Equal(t, []string{"agent", "service", "teams"}, m.ClientIDs())
	assert.Equal(t, []string{"t1", "t2"}, m.TenantIDs())

	s, ok := m.Settings("Teams")
	require.True(t, ok)
	assert.Equal(t, "teams", s.ClientID)
}

func TestDefaultConnection(t *testing.T) {
	single, err := authentication.NewConnectionManager(map[string]authentication.ConnectionSettings{
		"Only": {ClientID: "only"},
	}, nil, authentication.WithProviderFactory(fakeFactory))
	require.NoError(t, err)
	p, err := single.DefaultConnection()
	require.NoError(t, err)
	assert.Equal(t, namedProvider("only"), p)

	none, err := authentication.NewConnectionManager(nil, nil)
	require.NoError(t, err)
	_, err = none.DefaultConnection()
	assert.ErrorIs(t, err, authentication.ErrConnectionNotFound)
}

func TestNewConnectionManagerErrors(t *testing.T) {
	conns := map[string]authentication.ConnectionSettings{"A": {ClientID: "a"}}

	_, err := authentication.NewConnectionManager(conns,
		[]authentication.ConnectionMapEntry{{ServiceURL: "*", Connection: "B"}},
		authentication.WithProviderFactory(fakeFactory))
	assert.ErrorIs(t, err, authentication.ErrConnectionNotFound)

	_, err = authentication.NewConnectionManager(conns,
		[]authentication.ConnectionMapEntry{{ServiceURL: "(", Connection: "A"}},
		authentication.WithProviderFactory(fakeFactory))
	assert.Error(t, err)

	_, err = authentication.NewConnectionManager(map[string]authentication.ConnectionSettings{
		"Bad": {AuthType: authentication.AuthTypeClientSecret},
	}, nil)
	assert.ErrorIs(t, err, authentication.ErrInvalidSettings)
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name string
		s    authentication.ConnectionSettings
		ok   bool
	}{
		{"client secret", authentication.ConnectionSettings{ClientID: "c", ClientSecret: "s", TenantID: "t"}, true},
		{"client secret missing", authentication.ConnectionSettings{ClientID: "c"}, false},
		{"user managed", authentication.ConnectionSettings{AuthType: authentication.AuthTypeUserManagedIdentity, ClientID: "c"}, true},
		{"user managed missing", authentication.ConnectionSettings{AuthType: authentication.AuthTypeUserManagedIdentity}, false},
		{"system managed", authentication.ConnectionSettings{AuthType: authentication.AuthTypeSystemManagedIdentity}, true},
		{"federated", authentication.ConnectionSettings{AuthType: authentication.AuthTypeFederatedCredentials, ClientID: "c", TenantID: "t", FederatedClientID: "f"}, true},
		{"federated missing", authentication.ConnectionSettings{AuthType: authentication.AuthTypeFederatedCredentials, ClientID: "c", TenantID: "t"}, false},
		{"workload", authentication.ConnectionSettings{AuthType: authentication.AuthTypeWorkloadIdentity, ClientID: "c", TenantID: "t"}, true},
		{"unknown", authentication.ConnectionSettings{AuthType: "Magic"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, authentication.ErrInvalidSettings)
			}
		})
	}
}

type fakeCredential struct {
	scopes []string
	err    error
}

func (c *fakeCredential) GetToken(_ context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	c.scopes = opts.Scopes
	if c.err != nil {
		return azcore.AccessToken{}, c.err
	}
	return azcore.AccessToken{Token: "tok", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func TestCredentialTokenProviderScopes(t *testing.T) {
	ctx := context.Background()
	cred := &fakeCredential{}

	p := authentication.NewCredentialTokenProvider(cred)
	tok, err := p.GetAccessToken(ctx, "https://api.botframework.com/", nil)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
	assert.Equal(t, []string{"https://api.botframework.com/.default"}, cred.scopes)

	_, err = p.GetAccessToken(ctx, "https://x", []string{"custom"})
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, cred.scopes)

	p = authentication.NewCredentialTokenProvider(cred, "configured")
	_, err = p.GetAccessToken(ctx, "https://x", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"configured"}, cred.scopes)

	cred.err = errors.New("boom")
	_, err = p.GetAccessToken(ctx, "https://x", nil)
	assert.ErrorIs(t, err, agents.ErrAuth)

	tok, err = authentication.AnonymousTokenProvider{}.GetAccessToken(ctx, "https://x", nil)
	require.NoError(t, err)
	assert.Empty(t, tok)
}
