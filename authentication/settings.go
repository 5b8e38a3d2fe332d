// Copyright (c) Microsoft. All rights reserved.

package authentication

import (
	"fmt"

	"github.com/microsoft/agents-sdk/go/agents"
)

// AuthType selects how a connection obtains tokens.
type AuthType string

const (
	AuthTypeClientSecret          AuthType = "ClientSecret"
	AuthTypeUserManagedIdentity   AuthType = "UserManagedIdentity"
	AuthTypeSystemManagedIdentity AuthType = "SystemManagedIdentity"
	AuthTypeFederatedCredentials  AuthType = "FederatedCredentials"
	AuthTypeWorkloadIdentity      AuthType = "WorkloadIdentity"
)

// ErrInvalidSettings is returned for incomplete connection settings.
var ErrInvalidSettings = fmt.Errorf("%w: invalid connection settings", agents.ErrAuth)

// ConnectionSettings describes one outbound identity.
type ConnectionSettings struct {
	AuthType     AuthType `yaml:"authType" json:"authType"`
	ClientID     string   `yaml:"clientId" json:"clientId"`
	ClientSecret string   `yaml:"clientSecret" json:"clientSecret,omitempty"`
	TenantID     string   `yaml:"tenantId" json:"tenantId"`
	// Authority overrides the Entra ID authority host, for sovereign clouds.
	Authority string   `yaml:"authority" json:"authority,omitempty"`
	Scopes    []string `yaml:"scopes" json:"scopes,omitempty"`
	// FederatedClientID is the managed identity whose token is exchanged
	// for the app's token under FederatedCredentials.
	FederatedClientID  string `yaml:"federatedClientId" json:"federatedClientId,omitempty"`
	FederatedTokenFile string `yaml:"federatedTokenFile" json:"federatedTokenFile,omitempty"`
}

// Validate checks that the fields the auth type needs are present.
func (s ConnectionSettings) Validate() error {
	switch s.AuthType {
	case "", AuthTypeClientSecret:
		if s.ClientID == "" || s.ClientSecret == "" || s.TenantID == "" {
			return fmt.Errorf("%w: ClientSecret needs clientId, clientSecret and tenantId", ErrInvalidSettings)
		}
	case AuthTypeUserManagedIdentity:
		if s.ClientID == "" {
			return fmt.Errorf("%w: UserManagedIdentity needs clientId", ErrInvalidSettings)
		}
	case AuthTypeSystemManagedIdentity:
	case AuthTypeFederatedCredentials:
		if s.ClientID == "" || s.TenantID == "" || s.FederatedClientID == "" {
			return fmt.Errorf("%w: FederatedCredentials needs clientId, tenantId and federatedClientId", ErrInvalidSettings)
		}
	case AuthTypeWorkloadIdentity:
		if s.ClientID == "" || s.TenantID == "" {
			return fmt.Errorf("%w: WorkloadIdentity needs clientId and tenantId", ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%w: unknown auth type %q", ErrInvalidSettings, s.AuthType)
	}
	return nil
}
