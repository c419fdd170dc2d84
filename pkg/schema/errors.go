package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeTimeout           = "TIMEOUT_ERROR"
	ErrCodeExpression        = "EXPRESSION_ERROR"

	// Step failure taxonomy.
	ErrCodeUnknownIntegration      = "UNKNOWN_INTEGRATION"
	ErrCodeUnknownAction           = "UNKNOWN_ACTION"
	ErrCodeIntegrationNotConnected = "INTEGRATION_NOT_CONNECTED"
	ErrCodeDecryption              = "DECRYPTION_ERROR"
	ErrCodeMissingCredentials      = "MISSING_CREDENTIALS"
	ErrCodeActionExecution         = "ACTION_EXECUTION_ERROR"
)

// EngineError is the structured error type for all engine operations.
type EngineError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	StepNumber int            `json:"step_number,omitempty"`
	Cause      error          `json:"-"`
}

func (e *EngineError) Error() string {
	if e.StepNumber > 0 {
		return fmt.Sprintf("[%s] step %d: %s", e.Code, e.StepNumber, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// NewError creates a new EngineError.
func NewError(code, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// NewErrorf creates a new EngineError with a formatted message.
func NewErrorf(code, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a 1-based step number to the error.
func (e *EngineError) WithStep(n int) *EngineError {
	e.StepNumber = n
	return e
}

// WithCause attaches an underlying cause.
func (e *EngineError) WithCause(err error) *EngineError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *EngineError) WithDetails(details map[string]any) *EngineError {
	e.Details = details
	return e
}

// IsCode reports whether err (or anything it wraps) is an EngineError with the given code.
func IsCode(err error, code string) bool {
	var engErr *EngineError
	if !errors.As(err, &engErr) {
		return false
	}
	return engErr.Code == code
}

// Message returns the human-readable message of err. For an EngineError this is
// the bare message without the code prefix, which is what gets recorded on
// failed steps and runs.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var engErr *EngineError
	if errors.As(err, &engErr) {
		return engErr.Message
	}
	return err.Error()
}
