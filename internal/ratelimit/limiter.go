// Package ratelimit throttles calls per (identity, endpoint) with a sliding
// window log.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Rule is a ceiling of Limit calls per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Validate checks the rule.
func (r Rule) Validate() error {
	if r.Limit <= 0 {
		return errors.New("ratelimit: limit must be positive")
	}
	if r.Window <= 0 {
		return errors.New("ratelimit: window must be positive")
	}
	return nil
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects calls. Keys are independent; a rejected call is
// not recorded, so it does not extend the caller's penalty.
type Limiter interface {
	Allow(ctx context.Context, identity, endpoint string) (Decision, error)
}

// Clock returns the current time.
type Clock func() time.Time

func key(identity, endpoint string) (string, error) {
	if identity == "" || endpoint == "" {
		return "", errors.New("ratelimit: identity and endpoint are required")
	}
	return fmt.Sprintf("ratelimit:%s:%s", endpoint, identity), nil
}
