// Copyright (c) Microsoft. All rights reserved.

package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMPrefix marks a configuration value stored in SSM Parameter Store. The
// rest of the value is the parameter name.
const SSMPrefix = "ssm:"

// SSMAPI is the minimal AWS SSM interface required by [ParamStore].
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParamStore reads decrypted parameters from SSM. Values are cached for the
// life of the store.
type ParamStore struct {
	api SSMAPI

	mu    sync.Mutex
	cache map[string]string
}

// NewParamStore creates a ParamStore with the given SSM API implementation.
func NewParamStore(api SSMAPI) (*ParamStore, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &ParamStore{api: api, cache: map[string]string{}}, nil
}

// GetParameter returns the decrypted value of the named parameter.
func (p *ParamStore) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	p.mu.Lock()
	v, ok := p.cache[name]
	p.mu.Unlock()
	if ok {
		return v, nil
	}

	withDecryption := true
	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q has no value", name)
	}

	p.mu.Lock()
	p.cache[name] = *out.Parameter.Value
	p.mu.Unlock()
	return *out.Parameter.Value, nil
}

// Resolve returns value unchanged unless it starts with [SSMPrefix], in
// which case the referenced parameter is fetched.
func (p *ParamStore) Resolve(ctx context.Context, value string) (string, error) {
	name, ok := strings.CutPrefix(value, SSMPrefix)
	if !ok {
		return value, nil
	}
	return p.GetParameter(ctx, name)
}
