package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestBenchError_Error(t *testing.T) {
	err := New(ErrCategoryStorage, CodeWriteFailure, "put failed")
	expected := "[STORAGE:WRITE_FAILURE] put failed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestBenchError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryInvocation, CodeInvocationFailure, "invoke failed", cause)
	expected := "[INVOCATION:INVOCATION_FAILURE] invoke failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestBenchError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewWriteFailure("upload part 3", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestBenchError_Is(t *testing.T) {
	err1 := New(ErrCategoryQuery, CodeQueryTimeout, "first")
	err2 := New(ErrCategoryQuery, CodeQueryTimeout, "second")
	err3 := New(ErrCategoryQuery, CodeQueryFailure, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{NewInvalidParameter("size must be positive"), KindInvalidParameter},
		{NewConfigError("bucket required"), KindInvalidParameter},
		{NewWriteFailure("abort after part failure", nil), KindWriteFailure},
		{NewStatFailure("verify object", nil), KindWriteFailure},
		{NewEndpointNotFound("no such function", nil), KindEndpointNotFound},
		{NewInvocationError(CodeThrottled, "rate exceeded", nil), KindInvocationFailure},
		{NewInvocationError(CodeTimeout, "deadline", nil), KindInvocationFailure},
		{NewInvocationError(CodeFunctionError, "Unhandled", nil), KindInvocationFailure},
		{NewQueryError(CodeQueryTimeout, "still running", nil), KindQueryFailure},
		{NewInternalError("boom", nil), KindUnknown},
		{fmt.Errorf("plain"), KindUnknown},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.kind {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.kind)
		}
	}
}

func TestKindOf_WrappedChain(t *testing.T) {
	inner := NewWriteFailure("part 2", fmt.Errorf("503"))
	outer := fmt.Errorf("handler: %w", inner)
	if !IsKind(outer, KindWriteFailure) {
		t.Error("IsKind should see through fmt wrapping")
	}
	if IsKind(nil, KindWriteFailure) {
		t.Error("nil error has no kind")
	}
}

func TestGetCategory(t *testing.T) {
	err := NewQueryError(CodeQueryFailure, "bad query", nil)
	if GetCategory(err) != ErrCategoryQuery {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryQuery)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-BenchError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := NewInvocationError(CodeThrottled, "429", nil)
	if GetCode(err) != CodeThrottled {
		t.Errorf("got %q, want %q", GetCode(err), CodeThrottled)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-BenchError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := NewWriteFailure("part failed", nil)
	detailed := err.WithDetails(map[string]interface{}{"part": 3})

	if detailed.Details["part"] != 3 {
		t.Error("WithDetails should set details")
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}
