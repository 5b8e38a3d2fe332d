// Copyright (c) Microsoft. All rights reserved.

// Package config loads host configuration for an agent process.
//
// # Sources
//
// [Load] starts from [Default], applies an optional YAML file, then a
// dotenv file, then the process environment. Later sources win, except
// that the dotenv file never overrides a variable already set in the
// environment.
//
// Nested keys use a double underscore separator:
//
//	CONNECTIONS__SERVICECONNECTION__SETTINGS__CLIENTID=...
//	CONNECTIONSMAP__0__SERVICEURL=https://smba.trafficmanager.net/.*
//	CONNECTIONSMAP__0__CONNECTION=ServiceConnection
//	STORAGE__TYPE=dynamodb
//	QUEUE__ASYNC=true
//
// # Secrets
//
// Connection client ids, secrets and tenant ids may be written as
// "ssm:/path/to/parameter". They are resolved through a [ParamStore]
// after all sources are merged.
package config
