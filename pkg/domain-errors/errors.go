// Package dErrors provides coded domain errors shared across services.
//
// Services wrap infrastructure errors into coded errors at the boundary so
// handlers can translate them into HTTP responses without inspecting error
// strings. Codes are stable identifiers; messages are for humans.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain error.
type Code string

const (
	// CodeValidation covers domain rule violations: illegal status
	// transitions, attempt-ceiling breaches, malformed enum values.
	CodeValidation Code = "validation"
	// CodeBadRequest covers malformed input at the API boundary.
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput covers values rejected at trust boundaries
	// (IDs, enums) before any domain rule runs.
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound signals a referenced entity does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict signals a concurrent modification detected at commit
	// time. Callers may retry the whole operation from reload.
	CodeConflict Code = "conflict"
	// CodeDeadline signals a lifecycle operation attempted on an expired
	// or already-terminal request. Never retried.
	CodeDeadline Code = "deadline"
	// CodeOutOfRange signals a numeric value outside its plausible bounds.
	CodeOutOfRange Code = "out_of_range"
	// CodeTimeout signals a cancelled or timed-out operation.
	CodeTimeout Code = "timeout"
	// CodeUnauthorized signals a missing or invalid credential.
	CodeUnauthorized Code = "unauthorized"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// DomainError carries a code, a human-readable message, and an optional cause.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is reports whether any error in the chain carries the given code.
func Is(err error, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// HasCode is an alias for Is; kept because both names appear at call sites.
func HasCode(err error, code Code) bool { return Is(err, code) }

// ToHTTPStatus maps a code to its HTTP status for transport handlers.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest, CodeInvalidInput, CodeOutOfRange:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeDeadline:
		return http.StatusUnprocessableEntity
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
