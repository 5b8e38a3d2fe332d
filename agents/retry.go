// Copyright (c) Microsoft. All rights reserved.

package agents

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls [Retry].
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Retryable reports whether err should be retried. Nil retries errors
	// matching ErrTransient.
	Retryable func(err error) bool
}

// DefaultRetryPolicy returns the policy used for outbound channel calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}
}

// IsTransient reports whether err is marked transient.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// Retry runs fn until it succeeds, returns a non-retryable error, the context
// ends, or the policy's attempts are used up. Delays grow exponentially with
// 10% jitter. When every attempt fails the returned error wraps
// ErrRetriesExhausted and joins each attempt's error.
func Retry(ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 1 {
		return fn(ctx)
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	multiplier := policy.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	var errs []error
	delay := policy.InitialDelay
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		errs = append(errs, err)
		if attempt == policy.MaxAttempts-1 {
			break
		}

		jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)
		t := time.NewTimer(delay + jitter)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * multiplier)
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %w", ErrRetriesExhausted, op, len(errs), errors.Join(errs...))
}
