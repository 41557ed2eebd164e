package gateways

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorClass partitions upstream failures by how the retry controller must
// treat them.
type ErrorClass int

const (
	// ClassTransient — network reset, 5xx, DNS failure. Retryable.
	ClassTransient ErrorClass = iota
	// ClassRateLimited — HTTP 429, optionally carrying a Retry-After hint.
	ClassRateLimited
	// ClassFatal — 4xx other than 429. Never retried.
	ClassFatal
)

// String implements fmt.Stringer.
func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified upstream gateway failure. The upstream detail is
// preserved verbatim in Detail for diagnostics; SafeMessage returns a
// generic string for untrusted display contexts.
type Error struct {
	Gateway    string
	Status     int           // HTTP status, 0 for connection-level failures
	Class      ErrorClass
	RetryAfter time.Duration // > 0 when the upstream sent a Retry-After hint
	Detail     string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: upstream error (%d): %s", e.Gateway, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Gateway, e.Detail)
}

// SafeMessage returns a generic message suitable for untrusted display.
func (e *Error) SafeMessage() string {
	switch e.Class {
	case ClassRateLimited:
		return "upstream provider is rate limiting requests"
	case ClassFatal:
		return "upstream provider rejected the request"
	default:
		return "upstream provider is temporarily unavailable"
	}
}

// ClassifyStatus maps an HTTP status code to an ErrorClass: 429 is
// rate-limited, 5xx transient, any other 4xx fatal.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status >= 500:
		return ClassTransient
	default:
		return ClassFatal
	}
}

// StatusError builds an *Error from an upstream HTTP status response,
// parsing a Retry-After header when present.
func StatusError(gateway string, status int, retryAfter, detail string) *Error {
	e := &Error{
		Gateway: gateway,
		Status:  status,
		Class:   ClassifyStatus(status),
		Detail:  detail,
	}
	if e.Class == ClassRateLimited && retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}

// TransportError wraps a connection-level failure (dial, reset, DNS) as a
// transient *Error.
func TransportError(gateway string, err error) *Error {
	return &Error{
		Gateway: gateway,
		Class:   ClassTransient,
		Detail:  err.Error(),
	}
}

// Classify returns the retry class for any error. Cancellation is reported
// by IsCancellation, never classified here; everything that is not a typed
// *Error is assumed to be a connection-level transient failure.
func Classify(err error) ErrorClass {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Class
	}
	return ClassTransient
}

// HintedDelay returns the upstream Retry-After hint carried by err, or 0.
func HintedDelay(err error) time.Duration {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.RetryAfter
	}
	return 0
}

// IsCancellation reports whether err is a caller-initiated cancellation or
// deadline expiry. These abort cleanly and must never enter retry logic.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
