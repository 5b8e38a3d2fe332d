// Copyright (c) Microsoft. All rights reserved.

package authentication

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/microsoft/agents-sdk/go/agents"
)

const (
	// DefaultJWKSURL serves the signing keys of channel service tokens.
	DefaultJWKSURL = "https://login.botframework.com/v1/.well-known/keys"

	// ChannelServiceIssuer is the issuer of channel service tokens.
	ChannelServiceIssuer = "https://api.botframework.com"

	defaultRefreshInterval = 24 * time.Hour
	defaultClockSkew       = 5 * time.Minute
	minRefetchInterval     = 5 * time.Minute
)

var (
	// ErrUnauthorized is returned when a request carries no valid token.
	ErrUnauthorized = fmt.Errorf("%w: unauthorized", agents.ErrAuth)

	// ErrKeySet is returned when signing keys cannot be obtained.
	ErrKeySet = fmt.Errorf("%w: signing keys", agents.ErrAuth)
)

// JWTOption configures a [JWTValidator].
type JWTOption func(*JWTValidator)

// WithKeySet uses a fixed key set instead of fetching one.
func WithKeySet(set jwk.Set) JWTOption {
	return func(v *JWTValidator) { v.static = set }
}

// WithJWKSURL sets the URL signing keys are fetched from.
func WithJWKSURL(url string) JWTOption {
	return func(v *JWTValidator) { v.jwksURL = url }
}

// WithRefreshInterval sets how long a fetched key set is reused.
func WithRefreshInterval(d time.Duration) JWTOption {
	return func(v *JWTValidator) { v.refresh = d }
}

// WithIssuers replaces the accepted issuers.
func WithIssuers(issuers ...string) JWTOption {
	return func(v *JWTValidator) { v.issuers = issuers }
}

// WithTenantIssuers additionally accepts the v1 and v2 Entra ID issuers of
// each tenant.
func WithTenantIssuers(tenantIDs ...string) JWTOption {
	return func(v *JWTValidator) {
		for _, tid := range tenantIDs {
			v.issuers = append(v.issuers,
				"https://sts.windows.net/"+tid+"/",
				"https://login.microsoftonline.com/"+tid+"/v2.0")
		}
	}
}

// WithClockSkew sets the tolerance applied to exp and nbf.
func WithClockSkew(d time.Duration) JWTOption {
	return func(v *JWTValidator) { v.skew = d }
}

// WithHTTPClient sets the client used to fetch keys.
func WithHTTPClient(c *http.Client) JWTOption {
	return func(v *JWTValidator) { v.client = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) JWTOption {
	return func(v *JWTValidator) { v.now = now }
}

// WithValidatorLogger sets the logger.
func WithValidatorLogger(l *slog.Logger) JWTOption {
	return func(v *JWTValidator) { v.logger = l }
}

// JWTValidator authenticates inbound requests from channels and agents.
//
// A validator with no audiences runs in anonymous mode: requests without an
// Authorization header are accepted as [agents.AnonymousIdentity].
type JWTValidator struct {
	audiences []string
	issuers   []string
	jwksURL   string
	refresh   time.Duration
	skew      time.Duration
	client    *http.Client
	now       func() time.Time
	logger    *slog.Logger

	static jwk.Set

	mu        sync.Mutex
	cached    jwk.Set
	fetchedAt time.Time
}

// NewJWTValidator returns a validator accepting tokens for audiences, which
// are normally the client ids of the configured connections.
func NewJWTValidator(audiences []string, opts ...JWTOption) *JWTValidator {
	v := &JWTValidator{
		audiences: audiences,
		issuers:   []string{ChannelServiceIssuer},
		jwksURL:   DefaultJWKSURL,
		refresh:   defaultRefreshInterval,
		skew:      defaultClockSkew,
		client:    http.DefaultClient,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Anonymous reports whether the validator accepts unauthenticated requests.
func (v *JWTValidator) Anonymous() bool { return len(v.audiences) == 0 }

// ValidateRequest authenticates r by its Authorization header.
func (v *JWTValidator) ValidateRequest(ctx context.Context, r *http.Request) (agents.ClaimsIdentity, error) {
	return v.ValidateHeader(ctx, r.Header.Get("Authorization"))
}

// ValidateHeader authenticates an Authorization header value.
func (v *JWTValidator) ValidateHeader(ctx context.Context, header string) (agents.ClaimsIdentity, error) {
	if header == "" {
		if v.Anonymous() {
			return agents.AnonymousIdentity(), nil
		}
		return agents.ClaimsIdentity{}, fmt.Errorf("%w: missing authorization header", ErrUnauthorized)
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return agents.ClaimsIdentity{}, fmt.Errorf("%w: malformed authorization header", ErrUnauthorized)
	}
	return v.ValidateToken(ctx, strings.TrimSpace(token))
}

// ValidateToken verifies the token's signature, lifetime, audience and
// issuer and returns its claims.
func (v *JWTValidator) ValidateToken(ctx context.Context, token string) (agents.ClaimsIdentity, error) {
	set, err := v.keySet(ctx, false)
	if err != nil {
		return agents.ClaimsIdentity{}, err
	}
	tok, err := v.parse(token, set)
	if err != nil && v.static == nil && v.canRefetch() {
		// Keys may have rolled over since the last fetch.
		if set, ferr := v.keySet(ctx, true); ferr == nil {
			tok, err = v.parse(token, set)
		}
	}
	if err != nil {
		v.logger.DebugContext(ctx, "token rejected", slog.Any("error", err))
		return agents.ClaimsIdentity{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	aud, _ := tok.Audience()
	if !v.Anonymous() && !slices.ContainsFunc(aud, v.acceptsAudience) {
		return agents.ClaimsIdentity{}, fmt.Errorf("%w: audience %v not accepted", ErrUnauthorized, aud)
	}
	iss, _ := tok.Issuer()
	if !slices.Contains(v.issuers, iss) {
		return agents.ClaimsIdentity{}, fmt.Errorf("%w: issuer %q not accepted", ErrUnauthorized, iss)
	}

	claims := map[string]string{agents.ClaimIssuer: iss}
	if len(aud) > 0 {
		claims[agents.ClaimAudience] = aud[0]
	}
	for _, name := range []string{agents.ClaimAppID, agents.ClaimAuthorizedParty, agents.ClaimVersion, agents.ClaimServiceURL, agents.ClaimTenantID} {
		var s string
		if err := tok.Get(name, &s); err == nil {
			claims[name] = s
		}
	}
	return agents.NewClaimsIdentity(claims), nil
}

func (v *JWTValidator) acceptsAudience(aud string) bool {
	for _, a := range v.audiences {
		if strings.EqualFold(a, aud) || strings.EqualFold("api://"+a, aud) {
			return true
		}
	}
	return false
}

func (v *JWTValidator) parse(token string, set jwk.Set) (jwt.Token, error) {
	return jwt.Parse([]byte(token),
		jwt.WithKeySet(set, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithClock(jwt.ClockFunc(v.now)),
	)
}

func (v *JWTValidator) canRefetch() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now().Sub(v.fetchedAt) >= minRefetchInterval
}

func (v *JWTValidator) keySet(ctx context.Context, force bool) (jwk.Set, error) {
	if v.static != nil {
		return v.static, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !force && v.cached != nil && v.now().Sub(v.fetchedAt) < v.refresh {
		return v.cached, nil
	}
	set, err := jwk.Fetch(ctx, v.jwksURL, jwk.WithHTTPClient(v.client))
	if err != nil {
		if v.cached != nil {
			v.logger.WarnContext(ctx, "key refresh failed, using cached keys", slog.Any("error", err))
			return v.cached, nil
		}
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrKeySet, v.jwksURL, err)
	}
	v.cached = set
	v.fetchedAt = v.now()
	return set, nil
}
