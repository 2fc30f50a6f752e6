// Package engine implements the convergence core: the action graph, the fact
// snapshot, the planner that decides what needs to change, and the executor
// that applies it. The workflow is Manifest -> Graph -> Facts -> Plan -> Apply -> Report.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on
	// retry. Examples: a package mirror timing out, a database briefly refusing
	// connections.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting by an external system.
	// Retried with a longer backoff than plain transient failures.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassStructural indicates a non-recoverable error. Examples: a
	// malformed manifest, an unknown package name, permission denied. Never
	// retried.
	ErrorClassStructural ErrorClass = "structural"
)

// EngineError is a classified error with context about the action and
// operation that produced it.
type EngineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// ActionID is the action that caused the error, if applicable.
	ActionID string `json:"action_id,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.ActionID != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (action=%s, operation=%s): %s",
			e.Class, e.Message, e.ActionID, e.Operation, e.unwrapMessage())
	}
	if e.ActionID != "" {
		return fmt.Sprintf("[%s] %s (action=%s): %s",
			e.Class, e.Message, e.ActionID, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassThrottled,
		Message: message,
		Err:     err,
	}
}

// NewStructuralError creates a new structural error.
func NewStructuralError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassStructural,
		Message: message,
		Err:     err,
	}
}

// NewGraphError creates a structural error raised during graph construction.
// Graph errors always surface before any action runs.
func NewGraphError(message string) *EngineError {
	return &EngineError{
		Class:   ErrorClassStructural,
		Message: message,
		Code:    ErrCodeGraph,
	}
}

// NewProbeUnavailableError creates the error a fact probe returns when it
// cannot determine current state. It is transient so planning treats the
// answer as unknown rather than as "not satisfied".
func NewProbeUnavailableError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Code:    ErrCodeProbeUnavailable,
		Err:     err,
	}
}

// WithAction adds action context to an error.
func (e *EngineError) WithAction(actionID string) *EngineError {
	e.ActionID = actionID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassThrottled
	}
	return false
}

// IsStructural returns true if the error is classified as structural.
func IsStructural(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassStructural
	}
	return false
}

// IsRetryable returns true if the error can be retried.
// Transient and throttled errors are retryable; structural errors are not.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err)
}

// IsProbeUnavailable returns true if the error came from a fact probe that
// could not answer.
func IsProbeUnavailable(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == ErrCodeProbeUnavailable
	}
	return false
}

// Common error codes.
const (
	ErrCodeGraph            = "GRAPH_ERROR"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeProbeUnavailable = "PROBE_UNAVAILABLE"
	ErrCodeApplyFailed      = "APPLY_FAILED"
	ErrCodeDependencyFailed = "DEPENDENCY_FAILED"
	ErrCodePolicyDenied     = "POLICY_DENIED"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)
