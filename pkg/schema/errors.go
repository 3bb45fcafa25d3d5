package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeSyntax            = "SYNTAX_ERROR"
	ErrCodeProvider          = "PROVIDER_ERROR"
	ErrCodeResponseParse     = "RESPONSE_PARSE_ERROR"
	ErrCodeDanglingReference = "DANGLING_REFERENCE"
	ErrCodeCycleDetected     = "CYCLE_DETECTED"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeExpression        = "EXPRESSION_ERROR"
)

// FlowError is the structured error type for every translation stage.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Line    int            `json:"line,omitempty"`
	Ref     string         `json:"ref,omitempty"`
	// Transient marks provider failures that may succeed on retry.
	Transient bool  `json:"transient,omitempty"`
	Cause     error `json:"-"`
}

func (e *FlowError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("[%s] line %d: %s", e.Code, e.Line, e.Message)
	case e.Ref != "":
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Ref, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
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

// WithLine attaches a 1-based source line to the error.
func (e *FlowError) WithLine(line int) *FlowError {
	e.Line = line
	return e
}

// WithRef attaches the name of the dataset or recipe involved.
func (e *FlowError) WithRef(ref string) *FlowError {
	e.Ref = ref
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

// AsTransient marks the error as retryable.
func (e *FlowError) AsTransient() *FlowError {
	e.Transient = true
	return e
}

// IsRetryable reports whether the failure is worth another attempt.
// Only transient provider errors qualify.
func (e *FlowError) IsRetryable() bool {
	return e.Code == ErrCodeProvider && e.Transient
}

// ErrorCode returns the code of the first FlowError in err's chain, or "".
func ErrorCode(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// HasCode reports whether err carries the given FlowError code.
func HasCode(err error, code string) bool {
	return ErrorCode(err) == code
}
