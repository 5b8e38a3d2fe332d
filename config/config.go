// Copyright (c) Microsoft. All rights reserved.

package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/microsoft/agents-sdk/go/authentication"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageDynamoDB = "dynamodb"
	StorageSQLite   = "sqlite"
)

// ErrInvalidConfig is returned when loaded configuration is unusable.
var ErrInvalidConfig = errors.New("invalid configuration")

// Connection is one entry of the connections section.
type Connection struct {
	Settings authentication.ConnectionSettings `yaml:"settings"`
}

// StorageConfig selects the state storage backend. Table names the
// DynamoDB table or SQL table; DSN is the SQLite data source.
type StorageConfig struct {
	Type  string        `yaml:"type"`
	Table string        `yaml:"table"`
	TTL   time.Duration `yaml:"ttl"`
	DSN   string        `yaml:"dsn"`
}

// QueueConfig controls background processing.
type QueueConfig struct {
	Async           bool          `yaml:"async"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Config is the host configuration.
type Config struct {
	Port           int                                 `yaml:"port"`
	MessagesPath   string                              `yaml:"messagesPath"`
	LogLevel       string                              `yaml:"logLevel"`
	Connections    map[string]Connection               `yaml:"connections"`
	ConnectionsMap []authentication.ConnectionMapEntry `yaml:"connectionsMap"`
	Storage        StorageConfig                       `yaml:"storage"`
	Queue          QueueConfig                         `yaml:"queue"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Port:         3978,
		MessagesPath: "/api/messages",
		LogLevel:     "info",
		Connections:  map[string]Connection{},
		Storage:      StorageConfig{Type: StorageMemory},
		Queue:        QueueConfig{ShutdownTimeout: 30 * time.Second},
	}
}

// ConnectionSettings returns the settings of every connection by name.
func (c Config) ConnectionSettings() map[string]authentication.ConnectionSettings {
	out := make(map[string]authentication.ConnectionSettings, len(c.Connections))
	for name, conn := range c.Connections {
		out[name] = conn.Settings
	}
	return out
}

// SlogLevel parses LogLevel, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Validate checks the values that have no usable default.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if !strings.HasPrefix(c.MessagesPath, "/") {
		return fmt.Errorf("%w: messagesPath must start with /", ErrInvalidConfig)
	}
	switch c.Storage.Type {
	case StorageMemory:
	case StorageDynamoDB:
		if c.Storage.Table == "" {
			return fmt.Errorf("%w: dynamodb storage needs a table", ErrInvalidConfig)
		}
	case StorageSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: sqlite storage needs a dsn", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage type %q", ErrInvalidConfig, c.Storage.Type)
	}
	for i, e := range c.ConnectionsMap {
		if _, ok := c.Connections[e.Connection]; !ok {
			return fmt.Errorf("%w: connectionsMap entry %d names unknown connection %q", ErrInvalidConfig, i, e.Connection)
		}
	}
	return nil
}

// Option configures [Load].
type Option func(*loader)

type loader struct {
	file     string
	envFile  string
	environ  func() []string
	resolver *ParamStore
}

// WithFile reads a YAML file. The file must exist.
func WithFile(path string) Option {
	return func(l *loader) { l.file = path }
}

// WithEnvFile sets the dotenv file read before the environment. It
// defaults to .env; a missing file is ignored.
func WithEnvFile(path string) Option {
	return func(l *loader) { l.envFile = path }
}

// WithEnviron replaces os.Environ as the source of environment variables.
func WithEnviron(environ func() []string) Option {
	return func(l *loader) { l.environ = environ }
}

// WithParamStore resolves ssm: values through p.
func WithParamStore(p *ParamStore) Option {
	return func(l *loader) { l.resolver = p }
}

// Load builds the configuration from defaults, then the YAML file, then
// the dotenv file and environment, and finally resolves ssm: references.
// Process environment variables take precedence over the dotenv file.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	l := &loader{envFile: ".env", environ: os.Environ}
	for _, opt := range opts {
		opt(l)
	}

	cfg := Default()
	if l.file != "" {
		b, err := os.ReadFile(l.file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, l.file, err)
		}
		if cfg.Connections == nil {
			cfg.Connections = map[string]Connection{}
		}
	}

	env, err := l.env()
	if err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg, env); err != nil {
		return Config{}, err
	}
	if err := l.resolveSecrets(ctx, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l *loader) env() (map[string]string, error) {
	env := map[string]string{}
	if l.envFile != "" {
		dotenv, err := godotenv.Read(l.envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", l.envFile, err)
		}
		for k, v := range dotenv {
			env[strings.ToUpper(k)] = v
		}
	}
	for _, kv := range l.environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[strings.ToUpper(k)] = v
		}
	}
	return env, nil
}

func applyEnv(cfg *Config, env map[string]string) error {
	if v, ok := env["PORT"]; ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PORT: %w", ErrInvalidConfig, err)
		}
		cfg.Port = p
	}
	setString(&cfg.MessagesPath, env, "MESSAGES_PATH")
	setString(&cfg.LogLevel, env, "LOG_LEVEL")
	setString(&cfg.Storage.Type, env, "STORAGE__TYPE")
	setString(&cfg.Storage.Table, env, "STORAGE__TABLE")
	setString(&cfg.Storage.DSN, env, "STORAGE__DSN")
	if v, ok := env["STORAGE__TTL"]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: STORAGE__TTL: %w", ErrInvalidConfig, err)
		}
		cfg.Storage.TTL = d
	}
	if v, ok := env["QUEUE__ASYNC"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: QUEUE__ASYNC: %w", ErrInvalidConfig, err)
		}
		cfg.Queue.Async = b
	}
	if v, ok := env["QUEUE__SHUTDOWNTIMEOUT"]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: QUEUE__SHUTDOWNTIMEOUT: %w", ErrInvalidConfig, err)
		}
		cfg.Queue.ShutdownTimeout = d
	}

	// Sorted so connections map indexes apply in a stable order.
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		parts := strings.Split(k, "__")
		switch {
		case len(parts) == 4 && parts[0] == "CONNECTIONS" && parts[2] == "SETTINGS":
			name := connectionName(cfg, parts[1])
			conn := cfg.Connections[name]
			if err := setConnectionField(&conn.Settings, parts[3], env[k]); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, k, err)
			}
			cfg.Connections[name] = conn
		case len(parts) == 3 && parts[0] == "CONNECTIONSMAP":
			i, err := strconv.Atoi(parts[1])
			if err != nil || i < 0 || i > 1000 {
				return fmt.Errorf("%w: %s: bad index", ErrInvalidConfig, k)
			}
			for len(cfg.ConnectionsMap) <= i {
				cfg.ConnectionsMap = append(cfg.ConnectionsMap, authentication.ConnectionMapEntry{})
			}
			e := &cfg.ConnectionsMap[i]
			switch parts[2] {
			case "SERVICEURL":
				e.ServiceURL = env[k]
			case "CONNECTION":
				e.Connection = connectionName(cfg, env[k])
			case "AUDIENCE":
				e.Audience = env[k]
			default:
				return fmt.Errorf("%w: %s: unknown field", ErrInvalidConfig, k)
			}
		}
	}
	return nil
}

func setString(dst *string, env map[string]string, key string) {
	if v, ok := env[key]; ok {
		*dst = v
	}
}

// connectionName maps an environment name onto an existing connection
// regardless of case.
func connectionName(cfg *Config, name string) string {
	if strings.EqualFold(name, authentication.ServiceConnectionName) {
		return authentication.ServiceConnectionName
	}
	for existing := range cfg.Connections {
		if strings.EqualFold(existing, name) {
			return existing
		}
	}
	return name
}

func setConnectionField(s *authentication.ConnectionSettings, field, value string) error {
	switch field {
	case "AUTHTYPE":
		s.AuthType = authentication.AuthType(value)
	case "CLIENTID":
		s.ClientID = value
	case "CLIENTSECRET":
		s.ClientSecret = value
	case "TENANTID":
		s.TenantID = value
	case "AUTHORITY", "AUTHORITYENDPOINT":
		s.Authority = value
	case "SCOPES":
		s.Scopes = nil
		for _, sc := range strings.Split(value, ",") {
			if sc = strings.TrimSpace(sc); sc != "" {
				s.Scopes = append(s.Scopes, sc)
			}
		}
	case "FEDERATEDCLIENTID":
		s.FederatedClientID = value
	case "FEDERATEDTOKENFILE":
		s.FederatedTokenFile = value
	default:
		return fmt.Errorf("unknown connection setting %q", field)
	}
	return nil
}

func (l *loader) resolveSecrets(ctx context.Context, cfg *Config) error {
	resolve := func(field string, v *string) error {
		if !strings.HasPrefix(*v, SSMPrefix) {
			return nil
		}
		if l.resolver == nil {
			return fmt.Errorf("%w: %s references SSM but no parameter store is configured", ErrInvalidConfig, field)
		}
		r, err := l.resolver.Resolve(ctx, *v)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", field, err)
		}
		*v = r
		return nil
	}

	for name, conn := range cfg.Connections {
		s := &conn.Settings
		for field, v := range map[string]*string{
			"clientId":     &s.ClientID,
			"clientSecret": &s.ClientSecret,
			"tenantId":     &s.TenantID,
		} {
			if err := resolve("connections."+name+"."+field, v); err != nil {
				return err
			}
		}
		cfg.Connections[name] = conn
	}
	return nil
}
