package a2a

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies protocol errors so callers can branch on kind without
// string matching.
type Code string

const (
	// CodeValidation marks malformed or rule-violating input.
	CodeValidation Code = "validation_error"

	// CodeRuntime marks an internal failure while processing a task.
	CodeRuntime Code = "runtime_error"

	// CodeNotFound marks a lookup of an unknown task or resource.
	CodeNotFound Code = "not_found"

	// CodeUnreachable marks a peer agent that could not be contacted.
	CodeUnreachable Code = "unreachable"

	// CodeTimeout marks an operation that exceeded its deadline.
	CodeTimeout Code = "timeout"

	// CodeDecode marks a response that arrived but could not be parsed.
	CodeDecode Code = "decode_error"
)

// Error is the protocol error type. It carries a machine-readable code, a
// human-readable message, and an optional wrapped cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match on code: two protocol errors are equivalent when
// their codes match.
func (e *Error) Is(target error) bool {
	var pe *Error
	if errors.As(target, &pe) {
		return e.Code == pe.Code
	}
	return false
}

// NewError builds a protocol error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a protocol error around a cause.
func WrapError(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Sentinels for errors.Is checks on error kind.
var (
	ErrValidation  = &Error{Code: CodeValidation, Message: "validation error"}
	ErrRuntime     = &Error{Code: CodeRuntime, Message: "runtime error"}
	ErrNotFound    = &Error{Code: CodeNotFound, Message: "not found"}
	ErrUnreachable = &Error{Code: CodeUnreachable, Message: "agent unreachable"}
	ErrTimeout     = &Error{Code: CodeTimeout, Message: "timeout"}
	ErrDecode      = &Error{Code: CodeDecode, Message: "decode error"}
)

// CodeOf extracts the protocol code from err, defaulting to runtime for
// anything unclassified.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeRuntime
}

// HTTPStatus maps an error code onto the transport status line.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
