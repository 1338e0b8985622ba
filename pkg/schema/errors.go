package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeUpstream        = "UPSTREAM_ERROR"
	ErrCodeTimeout         = "TIMEOUT_ERROR"
	ErrCodeCircuitOpen     = "CIRCUIT_OPEN"
	ErrCodeDecode          = "DECODE_ERROR"
	ErrCodeCycleDetected   = "CYCLE_DETECTED"
	ErrCodeStore           = "STORE_ERROR"
	ErrCodeVault           = "VAULT_ERROR"
	ErrCodeCancelled       = "CANCELLED"
)

// FlowError is the structured error type for all editor operations.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FlowError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *FlowError) WithNode(nodeID string) *FlowError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}

// IsRetryable reports whether the operation that produced the error may
// succeed when attempted again.
func (e *FlowError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeUpstream, ErrCodeTimeout:
		return true
	default:
		return false
	}
}

// ErrorCode extracts the code of a FlowError anywhere in err's chain.
// Returns "" when err carries no FlowError.
func ErrorCode(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
