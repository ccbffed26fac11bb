package executor

import (
	"errors"
	"fmt"
)

// ExecutorError represents an error during executor operations.
type ExecutorError struct {
	Code       ErrorCode
	Message    string
	StepID     string
	ExecutorID string
	Cause      error
}

// ErrorCode represents the type of executor error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the executor was not found.
	ErrCodeNotFound ErrorCode = "EXECUTOR_NOT_FOUND"
	// ErrCodeExecution indicates an execution error.
	ErrCodeExecution ErrorCode = "EXECUTION_ERROR"
	// ErrCodePanic indicates the executor panicked.
	ErrCodePanic ErrorCode = "EXECUTOR_PANIC"
	// ErrCodeConfig indicates a configuration error (missing binding, missing service).
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"
	// ErrCodeInit indicates an initialization error.
	ErrCodeInit ErrorCode = "INIT_ERROR"
)

// Error implements the error interface.
func (e *ExecutorError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.ExecutorID != "" {
		prefix += " " + e.ExecutorID
	}
	if e.StepID != "" {
		prefix += "/" + e.StepID
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying error.
func (e *ExecutorError) Unwrap() error {
	return e.Cause
}

// NewExecutorNotFoundError creates an error for a missing executor.
func NewExecutorNotFoundError(id string) *ExecutorError {
	return &ExecutorError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("no executor registered for id: %s", id),
		ExecutorID: id,
	}
}

// NewExecutionError creates an error for execution failures.
func NewExecutionError(executorID, stepID, message string, cause error) *ExecutorError {
	return &ExecutorError{
		Code:       ErrCodeExecution,
		Message:    message,
		StepID:     stepID,
		ExecutorID: executorID,
		Cause:      cause,
	}
}

// NewPanicError wraps a recovered panic value.
func NewPanicError(executorID, stepID string, recovered any) *ExecutorError {
	return &ExecutorError{
		Code:       ErrCodePanic,
		Message:    fmt.Sprintf("executor panicked: %v", recovered),
		StepID:     stepID,
		ExecutorID: executorID,
	}
}

// NewConfigError creates an error for configuration issues.
func NewConfigError(executorID, stepID, message string) *ExecutorError {
	return &ExecutorError{
		Code:       ErrCodeConfig,
		Message:    message,
		StepID:     stepID,
		ExecutorID: executorID,
	}
}

// NewInitError creates an error for initialization failures.
func NewInitError(executorID, message string, cause error) *ExecutorError {
	return &ExecutorError{
		Code:       ErrCodeInit,
		Message:    fmt.Sprintf("failed to initialize executor %s: %s", executorID, message),
		ExecutorID: executorID,
		Cause:      cause,
	}
}

func hasCode(err error, code ErrorCode) bool {
	var execErr *ExecutorError
	if errors.As(err, &execErr) {
		return execErr.Code == code
	}
	return false
}

// IsNotFoundError checks if the error is an executor not found error.
func IsNotFoundError(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsConfigError checks if the error is a configuration error.
func IsConfigError(err error) bool { return hasCode(err, ErrCodeConfig) }

// IsPanicError checks if the error wraps a recovered panic.
func IsPanicError(err error) bool { return hasCode(err, ErrCodePanic) }
