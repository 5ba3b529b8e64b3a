// Package domainerrors defines the coded error type shared by services and the HTTP
// layer. Stores return sentinel errors for infrastructure facts; services wrap
// them with a code here so transport can translate without inspecting internals.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for transport mapping and log filtering.
type Code string

const (
	// CodeBadRequest marks input rejected at the validation boundary.
	CodeBadRequest Code = "bad_request"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeStore marks a persistence-layer failure (connectivity, constraint).
	CodeStore Code = "store_failure"
	// CodeInconsistent marks a violated internal invariant. Always fatal for
	// the request; never retried or recovered.
	CodeInconsistent Code = "internal_inconsistency"
	// CodeTimeout marks a cancelled or deadline-exceeded operation.
	CodeTimeout Code = "timeout"
	// CodeRateLimited marks a request rejected by rate limiting.
	CodeRateLimited Code = "rate_limited"
	// CodeInternal is the catch-all for everything else.
	CodeInternal Code = "internal"
)

// Error carries a code, a human message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a coded error around a cause. A nil cause returns nil so call
// sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the status the transport layer should emit.
// Store failures and inconsistencies both surface as a generic 500; the
// distinction only matters for logs and metrics.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
