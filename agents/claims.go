// Copyright (c) Microsoft. All rights reserved.

package agents

import "strings"

// Claim types read from channel and agent tokens.
const (
	ClaimAudience        = "aud"
	ClaimIssuer          = "iss"
	ClaimAppID           = "appid"
	ClaimAuthorizedParty = "azp"
	ClaimVersion         = "ver"
	ClaimServiceURL      = "serviceurl"
	ClaimTenantID        = "tid"
)

// AuthType values for [ClaimsIdentity].
const (
	AuthTypeAnonymous = "anonymous"
	AuthTypeBearer    = "Bearer"
)

// ChannelServiceAudience is the audience of tokens issued by the channel
// service itself.
const ChannelServiceAudience = "https://api.botframework.com"

// ClaimsIdentity is the caller identity extracted from an inbound token.
type ClaimsIdentity struct {
	Claims          map[string]string
	IsAuthenticated bool
	AuthType        string
}

// NewClaimsIdentity returns an authenticated identity with the given claims.
func NewClaimsIdentity(claims map[string]string) ClaimsIdentity {
	return ClaimsIdentity{Claims: claims, IsAuthenticated: true, AuthType: AuthTypeBearer}
}

// AnonymousIdentity is used when authentication is disabled.
func AnonymousIdentity() ClaimsIdentity {
	return ClaimsIdentity{Claims: map[string]string{}, AuthType: AuthTypeAnonymous}
}

// Claim returns the value of a claim, or "".
func (c ClaimsIdentity) Claim(name string) string {
	return c.Claims[name]
}

// Audience returns the aud claim.
func (c ClaimsIdentity) Audience() string { return c.Claim(ClaimAudience) }

// AppID returns the calling application's id. Version 1.0 tokens carry it in
// appid, version 2.0 tokens in azp.
func (c ClaimsIdentity) AppID() string {
	if c.Claim(ClaimVersion) == "2.0" {
		return c.Claim(ClaimAuthorizedParty)
	}
	if id := c.Claim(ClaimAppID); id != "" {
		return id
	}
	return c.Claim(ClaimAuthorizedParty)
}

// IsAgentClaim reports whether the token was issued to another agent rather
// than to the channel service.
func (c ClaimsIdentity) IsAgentClaim() bool {
	if c.Claim(ClaimVersion) == "" {
		return false
	}
	aud := c.Audience()
	if aud == "" || strings.EqualFold(aud, ChannelServiceAudience) {
		return false
	}
	app := c.AppID()
	return app != "" && !strings.EqualFold(app, aud)
}
