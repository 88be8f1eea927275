// Package errors provides structured error types for ingestbench.
// All errors include a category, code and message so callers can classify
// failures (and record them) without string matching. Nothing in the system
// retries automatically, so there is no retryable flag.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInvocation ErrorCategory = "INVOCATION"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeInvalidConfig    = "INVALID_CONFIG"

	// Storage codes
	CodeWriteFailure = "WRITE_FAILURE"
	CodeStatFailure  = "STAT_FAILURE"

	// Invocation codes
	CodeEndpointNotFound  = "ENDPOINT_NOT_FOUND"
	CodeInvocationFailure = "INVOCATION_FAILURE"
	CodeThrottled         = "THROTTLED"
	CodeTimeout           = "TIMEOUT"
	CodeFunctionError     = "FUNCTION_ERROR"

	// Query codes
	CodeQueryFailure = "QUERY_FAILURE"
	CodeQueryTimeout = "QUERY_TIMEOUT"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// BenchError is the structured error type used throughout the system.
type BenchError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *BenchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *BenchError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *BenchError) Is(target error) bool {
	var t *BenchError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new BenchError.
func New(category ErrorCategory, code, message string) *BenchError {
	return &BenchError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new BenchError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *BenchError {
	return &BenchError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *BenchError) WithDetails(details map[string]interface{}) *BenchError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a BenchError.
func GetCategory(err error) ErrorCategory {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a BenchError.
func GetCode(err error) string {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Kind is one of the five failure kinds callers branch on.
type Kind string

const (
	KindInvalidParameter  Kind = "InvalidParameter"
	KindWriteFailure      Kind = "WriteFailure"
	KindEndpointNotFound  Kind = "EndpointNotFound"
	KindInvocationFailure Kind = "InvocationFailure"
	KindQueryFailure      Kind = "QueryFailure"
	KindUnknown           Kind = ""
)

// KindOf maps an error chain onto the failure taxonomy. Throttling, timeouts
// and function errors are all invocation failures.
func KindOf(err error) Kind {
	var be *BenchError
	if !errors.As(err, &be) {
		return KindUnknown
	}
	switch be.Category {
	case ErrCategoryValidation:
		return KindInvalidParameter
	case ErrCategoryStorage:
		return KindWriteFailure
	case ErrCategoryInvocation:
		if be.Code == CodeEndpointNotFound {
			return KindEndpointNotFound
		}
		return KindInvocationFailure
	case ErrCategoryQuery:
		return KindQueryFailure
	default:
		return KindUnknown
	}
}

// IsKind reports whether err belongs to the given failure kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Convenience constructors for common errors.

func NewInvalidParameter(message string) *BenchError {
	return New(ErrCategoryValidation, CodeInvalidParameter, message)
}

func NewConfigError(message string) *BenchError {
	return New(ErrCategoryValidation, CodeInvalidConfig, message)
}

func NewWriteFailure(message string, cause error) *BenchError {
	return Wrap(ErrCategoryStorage, CodeWriteFailure, message, cause)
}

func NewStatFailure(message string, cause error) *BenchError {
	return Wrap(ErrCategoryStorage, CodeStatFailure, message, cause)
}

func NewEndpointNotFound(message string, cause error) *BenchError {
	return Wrap(ErrCategoryInvocation, CodeEndpointNotFound, message, cause)
}

func NewInvocationError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryInvocation, code, message, cause)
}

func NewQueryError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryQuery, code, message, cause)
}

func NewInternalError(message string, cause error) *BenchError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
