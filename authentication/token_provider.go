// Copyright (c) Microsoft. All rights reserved.

package authentication

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/microsoft/agents-sdk/go/agents"
)

// tokenExchangeScope is requested from a managed identity to obtain the
// assertion for a federated credential.
const tokenExchangeScope = "api://AzureADTokenExchange/.default"

// TokenProvider returns bearer tokens for outbound calls.
type TokenProvider interface {
	// GetAccessToken returns a token for resource. When scopes is empty the
	// resource's default scope is requested.
	GetAccessToken(ctx context.Context, resource string, scopes []string) (string, error)
}

// AnonymousTokenProvider returns no token. It is used when the agent runs
// without an app registration, as in local emulator testing.
type AnonymousTokenProvider struct{}

func (AnonymousTokenProvider) GetAccessToken(context.Context, string, []string) (string, error) {
	return "", nil
}

// CredentialTokenProvider gets tokens from an azcore credential. Token
// caching and refresh are handled by the credential.
type CredentialTokenProvider struct {
	cred   azcore.TokenCredential
	scopes []string
	logger *slog.Logger
}

var _ TokenProvider = (*CredentialTokenProvider)(nil)

// NewCredentialTokenProvider wraps cred. Scopes, if given, are used when a
// call does not name its own.
func NewCredentialTokenProvider(cred azcore.TokenCredential, scopes ...string) *CredentialTokenProvider {
	return &CredentialTokenProvider{cred: cred, scopes: scopes, logger: slog.Default()}
}

// NewTokenProvider builds a provider from connection settings.
func NewTokenProvider(s ConnectionSettings) (TokenProvider, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	cred, err := newCredential(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", agents.ErrAuth, err)
	}
	return NewCredentialTokenProvider(cred, s.Scopes...), nil
}

func newCredential(s ConnectionSettings) (azcore.TokenCredential, error) {
	var client azcore.ClientOptions
	if s.Authority != "" {
		client.Cloud.ActiveDirectoryAuthorityHost = s.Authority
	}

	switch s.AuthType {
	case "", AuthTypeClientSecret:
		return azidentity.NewClientSecretCredential(s.TenantID, s.ClientID, s.ClientSecret,
			&azidentity.ClientSecretCredentialOptions{ClientOptions: client})

	case AuthTypeUserManagedIdentity:
		return azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ClientOptions: client,
			ID:            azidentity.ClientID(s.ClientID),
		})

	case AuthTypeSystemManagedIdentity:
		return azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{ClientOptions: client})

	case AuthTypeFederatedCredentials:
		mi, err := azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ClientOptions: client,
			ID:            azidentity.ClientID(s.FederatedClientID),
		})
		if err != nil {
			return nil, err
		}
		assertion := func(ctx context.Context) (string, error) {
			tok, err := mi.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{tokenExchangeScope}})
			if err != nil {
				return "", err
			}
			return tok.Token, nil
		}
		return azidentity.NewClientAssertionCredential(s.TenantID, s.ClientID, assertion,
			&azidentity.ClientAssertionCredentialOptions{ClientOptions: client})

	case AuthTypeWorkloadIdentity:
		return azidentity.NewWorkloadIdentityCredential(&azidentity.WorkloadIdentityCredentialOptions{
			ClientOptions: client,
			ClientID:      s.ClientID,
			TenantID:      s.TenantID,
			TokenFilePath: s.FederatedTokenFile,
		})

	default:
		return nil, fmt.Errorf("unknown auth type %q", s.AuthType)
	}
}

// DefaultScope returns the ".default" scope for resource.
func DefaultScope(resource string) string {
	return strings.TrimSuffix(resource, "/") + "/.default"
}

func (p *CredentialTokenProvider) GetAccessToken(ctx context.Context, resource string, scopes []string) (string, error) {
	if len(scopes) == 0 {
		scopes = p.scopes
	}
	if len(scopes) == 0 {
		scopes = []string{DefaultScope(resource)}
	}
	p.logger.DebugContext(ctx, "acquiring token", slog.Any("scopes", scopes))
	tok, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: scopes})
	if err != nil {
		return "", fmt.Errorf("%w: get token: %w", agents.ErrAuth, err)
	}
	return tok.Token, nil
}
