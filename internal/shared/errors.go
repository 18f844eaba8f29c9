package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrScopeViolation indicates an identity reached outside its resolved scope.
	ErrScopeViolation = errors.New("scope violation")
	// ErrUnauthenticated indicates a missing or expired session.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrRateLimited indicates the throttle ceiling was hit.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrConflict indicates a uniqueness or duplicate request conflict.
	ErrConflict = errors.New("conflict")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// FieldErrors collects per-field validation messages.
type FieldErrors map[string]string

// Error implements error.
func (f FieldErrors) Error() string {
	if len(f) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrValidation.
func (f FieldErrors) Unwrap() error {
	return ErrValidation
}

// Details exposes the messages for the response payload.
func (f FieldErrors) Details() any {
	return map[string]string(f)
}

// RateLimitError carries the retry-after hint of a throttled call.
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

// Error implements error.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

// Unwrap lets errors.Is match ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// Scopef wraps ErrScopeViolation with a reason.
func Scopef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrScopeViolation, fmt.Sprintf(format, args...))
}

// Validationf wraps ErrValidation with a reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
