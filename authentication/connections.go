// Copyright (c) Microsoft. All rights reserved.

package authentication

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/microsoft/agents-sdk/go/agents"
)

// ServiceConnectionName is the connection used when no map entry applies.
const ServiceConnectionName = "ServiceConnection"

// ErrConnectionNotFound is returned for unknown connection names.
var ErrConnectionNotFound = fmt.Errorf("%w: connection", agents.ErrNotFound)

// ConnectionMapEntry picks a connection for outbound calls to channels whose
// service URL matches ServiceURL. ServiceURL is a regular expression; "*" or
// an empty value matches every URL. A non-empty Audience must also equal the
// audience of the inbound token.
type ConnectionMapEntry struct {
	ServiceURL string `yaml:"serviceUrl" json:"serviceUrl"`
	Audience   string `yaml:"audience" json:"audience,omitempty"`
	Connection string `yaml:"connection" json:"connection"`
}

type mapEntry struct {
	ConnectionMapEntry
	re *regexp.Regexp
}

// ProviderFactory builds a token provider for a connection.
type ProviderFactory func(ConnectionSettings) (TokenProvider, error)

// ManagerOption configures a [ConnectionManager].
type ManagerOption func(*managerConfig)

type managerConfig struct {
	factory ProviderFactory
}

// WithProviderFactory replaces [NewTokenProvider] as the way connections
// are turned into providers.
func WithProviderFactory(f ProviderFactory) ManagerOption {
	return func(c *managerConfig) { c.factory = f }
}

// ConnectionManager holds the configured connections and resolves which one
// serves a given channel.
type ConnectionManager struct {
	settings  map[string]ConnectionSettings
	providers map[string]TokenProvider
	entries   []mapEntry
}

// NewConnectionManager builds a provider for every connection and compiles
// the map. Every map entry must name a configured connection.
func NewConnectionManager(connections map[string]ConnectionSettings, connectionsMap []ConnectionMapEntry, opts ...ManagerOption) (*ConnectionManager, error) {
	cfg := managerConfig{factory: NewTokenProvider}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &ConnectionManager{
		settings:  make(map[string]ConnectionSettings, len(connections)),
		providers: make(map[string]TokenProvider, len(connections)),
	}
	for name, s := range connections {
		p, err := cfg.factory(s)
		if err != nil {
			return nil, fmt.Errorf("connection %q: %w", name, err)
		}
		m.settings[name] = s
		m.providers[name] = p
	}

	for i, e := range connectionsMap {
		if _, ok := m.providers[e.Connection]; !ok {
			return nil, fmt.Errorf("%w: connections map entry %d names %q", ErrConnectionNotFound, i, e.Connection)
		}
		entry := mapEntry{ConnectionMapEntry: e}
		if e.ServiceURL != "" && e.ServiceURL != "*" {
			re, err := regexp.Compile(e.ServiceURL)
			if err != nil {
				return nil, fmt.Errorf("connections map entry %d: %w", i, err)
			}
			entry.re = re
		}
		m.entries = append(m.entries, entry)
	}
	return m, nil
}

// Connection returns the provider registered under name.
func (m *ConnectionManager) Connection(name string) (TokenProvider, error) {
	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrConnectionNotFound, name)
	}
	return p, nil
}

// Settings returns the settings of the named connection.
func (m *ConnectionManager) Settings(name string) (ConnectionSettings, bool) {
	s, ok := m.settings[name]
	return s, ok
}

// Names returns the connection names in sorted order.
func (m *ConnectionManager) Names() []string {
	names := make([]string, 0, len(m.providers))
	for n := range m.providers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// DefaultConnection returns the ServiceConnection, or the only connection
// when exactly one is configured.
func (m *ConnectionManager) DefaultConnection() (TokenProvider, error) {
	if p, ok := m.providers[ServiceConnectionName]; ok {
		return p, nil
	}
	if len(m.providers) == 1 {
		for _, p := range m.providers {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrConnectionNotFound, ServiceConnectionName)
}

// ForServiceURL returns the provider for outbound calls to serviceURL on
// behalf of the inbound identity. Map entries are tried in order.
func (m *ConnectionManager) ForServiceURL(claims agents.ClaimsIdentity, serviceURL string) (TokenProvider, error) {
	aud := claims.Audience()
	for _, e := range m.entries {
		if e.re != nil && !e.re.MatchString(serviceURL) {
			continue
		}
		if e.Audience != "" && !strings.EqualFold(e.Audience, aud) {
			continue
		}
		return m.Connection(e.Connection)
	}
	return m.DefaultConnection()
}

// ClientIDs returns the client ids of all connections, for use as accepted
// token audiences.
func (m *ConnectionManager) ClientIDs() []string {
	var ids []string
	for _, name := range m.Names() {
		if id := m.settings[name].ClientID; id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// TenantIDs returns the distinct tenant ids of all connections.
func (m *ConnectionManager) TenantIDs() []string {
	var ids []string
	for _, name := range m.Names() {
		if id := m.settings[name].TenantID; id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}
