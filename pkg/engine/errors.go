package engine

import (
	"errors"
	"fmt"
)

// ErrorClass groups errors by the phase of an operation they belong to.
type ErrorClass string

const (
	// ErrorClassResolution indicates a failure detected while resolving the
	// dependency graph, before any command has run. Resolution failures
	// abort with zero side effects.
	ErrorClassResolution ErrorClass = "resolution"

	// ErrorClassExecution indicates a failure while running a check or
	// install command. The operation aborts at the current package; earlier
	// packages remain installed.
	ErrorClassExecution ErrorClass = "execution"

	// ErrorClassPolicy indicates the resolved plan was rejected by a policy.
	ErrorClassPolicy ErrorClass = "policy"

	// ErrorClassInternal indicates a bug or invariant violation.
	ErrorClassInternal ErrorClass = "internal"
)

// OperationError represents a classified error raised during an install
// operation, with package and command context attached where known.
type OperationError struct {
	// Class is the phase classification of the error.
	Class ErrorClass `json:"class"`

	// Code is a stable error code for programmatic handling.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Package is the package being processed when the error occurred.
	Package string `json:"package,omitempty"`

	// Command is the command text that failed, if applicable.
	Command string `json:"command,omitempty"`

	// ExitCode is the command exit status for COMMAND_FAILED errors.
	ExitCode int `json:"exit_code,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Package != "" {
		msg = fmt.Sprintf("%s (package=%s)", msg, e.Package)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is matches operation errors by class and code.
func (e *OperationError) Is(target error) bool {
	t, ok := target.(*OperationError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithPackage attaches package context to an error.
func (e *OperationError) WithPackage(name string) *OperationError {
	e.Package = name
	return e
}

// WithCommand attaches the failing command text to an error.
func (e *OperationError) WithCommand(command string) *OperationError {
	e.Command = command
	return e
}

// NewResolutionError creates a resolution-phase error with the given code.
func NewResolutionError(code, message string, err error) *OperationError {
	return &OperationError{
		Class:   ErrorClassResolution,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewExecutionError creates an execution-phase error with the given code.
func NewExecutionError(code, message string, err error) *OperationError {
	return &OperationError{
		Class:   ErrorClassExecution,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewPolicyError creates a policy rejection error.
func NewPolicyError(message string, err error) *OperationError {
	return &OperationError{
		Class:   ErrorClassPolicy,
		Code:    ErrCodePolicyDenied,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates an internal invariant error.
func NewInternalError(message string, err error) *OperationError {
	return &OperationError{
		Class:   ErrorClassInternal,
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// IsResolution returns true if the error is a resolution-phase error.
func IsResolution(err error) bool {
	var e *OperationError
	if errors.As(err, &e) {
		return e.Class == ErrorClassResolution
	}
	return false
}

// IsExecution returns true if the error is an execution-phase error.
func IsExecution(err error) bool {
	var e *OperationError
	if errors.As(err, &e) {
		return e.Class == ErrorClassExecution
	}
	return false
}

// HasCode returns true if err carries the given operation error code.
func HasCode(err error, code string) bool {
	var e *OperationError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Operation error codes.
const (
	ErrCodePackageNotFound     = "PACKAGE_NOT_FOUND"
	ErrCodeEnvironmentNotFound = "ENVIRONMENT_NOT_CONFIGURED"
	ErrCodeCyclicDependency    = "CYCLIC_DEPENDENCY"
	ErrCodeSpawnFailed         = "SPAWN_ERROR"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeCanceled            = "CANCELED"
	ErrCodeCommandFailed       = "COMMAND_FAILED"
	ErrCodePolicyDenied        = "POLICY_DENIED"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeInternal            = "INTERNAL_ERROR"
)
