package sdk

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures. Kinds, not concrete types, drive
// retry decisions and the failure codes surfaced by the API.
type ErrorKind string

const (
	ErrValidation         ErrorKind = "validation_error"
	ErrRegistry           ErrorKind = "registry_error"
	ErrInputUnresolved    ErrorKind = "input_unresolved"
	ErrOutputSchema       ErrorKind = "output_schema_error"
	ErrTransient          ErrorKind = "transient"
	ErrRateLimited        ErrorKind = "rate_limited"
	ErrTimeout            ErrorKind = "timeout"
	ErrCanceled           ErrorKind = "canceled"
	ErrBudgetExceeded     ErrorKind = "budget_exceeded"
	ErrSandboxViolation   ErrorKind = "sandbox_violation"
	ErrResourceExceeded   ErrorKind = "resource_exceeded"
	ErrCircularDependency ErrorKind = "circular_dependency"
	ErrAirgapViolation    ErrorKind = "airgap_violation"
	ErrUpstreamFailed     ErrorKind = "upstream_failed"
	ErrInternal           ErrorKind = "internal"
)

// Retryable reports whether a failure of this kind should be retried
// under the node's retry policy.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrTransient, ErrRateLimited, ErrTimeout:
		return true
	default:
		return false
	}
}

// Error carries an ErrorKind alongside a human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a kinded error with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps err with a kind and message.
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the ErrorKind from err. Context cancellation and deadline
// errors map to Canceled and Timeout; everything unclassified is Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrCanceled
	}
	return ErrInternal
}
