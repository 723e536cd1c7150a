package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"
)

// AuthError indicates expired or invalid credentials. It is never retried.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError indicates provider throttling. The caller backs off and retries.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (%s, retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited (%s): %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// TransientNetworkError is any other retryable failure.
type TransientNetworkError struct {
	Provider string
	Err      error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error (%s): %v", e.Provider, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsRateLimitError reports whether err (or any error in its chain) is a RateLimitError.
func IsRateLimitError(err error) bool {
	var rateErr *RateLimitError
	return errors.As(err, &rateErr)
}

// IsTransient reports whether err (or any error in its chain) is a TransientNetworkError.
func IsTransient(err error) bool {
	var netErr *TransientNetworkError
	return errors.As(err, &netErr)
}

// IsRetryable reports whether the operation that produced err may be retried.
func IsRetryable(err error) bool {
	return IsRateLimitError(err) || IsTransient(err)
}

var rateLimitMarkers = []string{
	"throttl",
	"too many",
	"rate limit",
	"ratelimit",
	"try again later",
	"[limit]",
}

var authMarkers = []string{
	"authenticationfailed",
	"invalid credentials",
	"authentication failed",
	"login failed",
	"auth failed",
	"application-specific password required",
	"[auth]",
}

// classify maps an error coming out of a mail protocol library onto the
// error kinds above. Already classified errors pass through unchanged.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if IsAuthError(err) || IsRateLimitError(err) || IsTransient(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &AuthError{Provider: provider, Err: err}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return &AuthError{Provider: provider, Err: err}
		}
	}
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return &RateLimitError{Provider: provider, Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed) ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") {
		return &TransientNetworkError{Provider: provider, Err: err}
	}

	return err
}
