package resilience

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Category classifies a failure by how the fault-tolerance layer reacts to
// it. Connection, timeout, rate_limit and server failures are transient;
// validation, auth, not_found and other are permanent.
type Category string

const (
	CategoryConnection Category = "connection"
	CategoryTimeout    Category = "timeout"
	CategoryRateLimit  Category = "rate_limit"
	CategoryServer     Category = "server"
	CategoryValidation Category = "validation"
	CategoryAuth       Category = "auth"
	CategoryNotFound   Category = "not_found"
	CategoryOther      Category = "other"
)

// Transient reports whether failures of this category are worth retrying.
func (c Category) Transient() bool {
	switch c {
	case CategoryConnection, CategoryTimeout, CategoryRateLimit, CategoryServer:
		return true
	}
	return false
}

// Codes attached to errors synthesized by this package rather than the API.
const (
	CodeCircuitOpen   = "CIRCUIT_BREAKER_OPEN"
	CodeHalfOpenLimit = "CIRCUIT_HALF_OPEN_LIMIT"
)

// Error is a classified failure from a guarded call. StatusCode is set when
// the failure came from an HTTP response, RetryAfter when the server
// suggested a wait, and Err when a lower-level error caused it.
type Error struct {
	Category   Category
	Code       string
	Message    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Category, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Classify coerces any error into a classified *Error. Already-classified
// errors are returned as-is, network errors map onto connection or timeout,
// everything else lands in CategoryOther.
func Classify(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return &Error{Category: CategoryTimeout, Message: err.Error(), Err: err}
		}
		return &Error{Category: CategoryConnection, Message: err.Error(), Err: err}
	}

	// A connection dropped mid-response surfaces as an EOF.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Category: CategoryConnection, Message: err.Error(), Err: err}
	}

	return &Error{Category: CategoryOther, Message: err.Error(), Err: err}
}

// CategoryForStatus maps an HTTP response status to a failure category.
func CategoryForStatus(status int) Category {
	switch {
	case status == 408:
		return CategoryTimeout
	case status == 429:
		return CategoryRateLimit
	case status == 401 || status == 403:
		return CategoryAuth
	case status == 404:
		return CategoryNotFound
	case status == 400 || status == 409 || status == 422:
		return CategoryValidation
	case status >= 500:
		return CategoryServer
	default:
		return CategoryOther
	}
}

// IsRetryable reports whether err belongs to a transient category.
func IsRetryable(err error) bool {
	return Classify(err).Category.Transient()
}

// IsCircuitOpen reports whether err is a circuit breaker rejection.
func IsCircuitOpen(err error) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == CodeCircuitOpen || ce.Code == CodeHalfOpenLimit
}
