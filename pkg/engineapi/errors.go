package engineapi

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// APIError is the base error type for all voice engine API errors.
type APIError struct {
	Code    int
	Message string
	Cause   error
}

func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("engine api error %d: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("engine api error %d: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Cause }

// RateLimitError is returned when the engine rate-limits the request.
type RateLimitError struct{ APIError }

// ServerError is returned on 5xx responses from the engine.
type ServerError struct{ APIError }

// AuthError is returned on authentication/authorization failures.
type AuthError struct{ APIError }

// NotFoundError is returned when the addressed agent or tool does not exist.
type NotFoundError struct{ APIError }

// statusError maps a non-2xx response to the matching typed error.
func statusError(code int, msg string) error {
	base := APIError{Code: code, Message: msg}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &AuthError{base}
	case code == http.StatusNotFound:
		return &NotFoundError{base}
	case code == http.StatusTooManyRequests:
		return &RateLimitError{base}
	case code >= 500:
		return &ServerError{base}
	}
	return &base
}

// Retryable returns true if the error is transient and the request may be retried.
func Retryable(err error) bool {
	var rl *RateLimitError
	var se *ServerError
	return errors.As(err, &rl) || errors.As(err, &se)
}

// WithRetry retries fn up to maxAttempts using exponential backoff with jitter.
// It respects context cancellation.
func WithRetry(ctx context.Context, maxAttempts int, fn func() error) error {
	return retry(ctx, maxAttempts, time.Second, fn)
}

func retry(ctx context.Context, maxAttempts int, unit time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for i := range maxAttempts {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if i == maxAttempts-1 {
			break
		}
		// Exponential backoff: base unit, capped at 30 units, ±25% jitter
		base := unit << uint(i)
		if base > 30*unit {
			base = 30 * unit
		}
		jitter := time.Duration(rand.Float64() * 0.5 * float64(base))
		wait := base/4*3 + jitter
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", maxAttempts, lastErr)
}
