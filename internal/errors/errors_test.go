package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestBuildMonError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *BuildMonError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CategoryConfig, SeverityFatal, "configuration invalid"),
			expected: "config (fatal): configuration invalid",
		},
		{
			name:     "error with cause",
			err:      Wrap(fmt.Errorf("file not found"), CategoryConfig, SeverityFatal, "failed to load config"),
			expected: "config (fatal): failed to load config: file not found",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.err.Error()
			if result != test.expected {
				t.Errorf("Error() = %q, want %q", result, test.expected)
			}
		})
	}
}

func TestBuildMonError_WithContext(t *testing.T) {
	err := ProcessError("spawn failed", fmt.Errorf("no such file")).
		WithContext("command", "make").
		WithContext("build_id", "abc12345")

	if err.Context == nil {
		t.Fatal("Context should not be nil")
	}
	if err.Context["command"] != "make" {
		t.Errorf("Context[command] = %v, want make", err.Context["command"])
	}
	if err.Context["build_id"] != "abc12345" {
		t.Errorf("Context[build_id] = %v, want abc12345", err.Context["build_id"])
	}
}

func TestIsCategory(t *testing.T) {
	validationErr := ValidationError("bad target name")
	processErr := ProcessError("spawn failed", nil)
	standardErr := fmt.Errorf("standard error")
	wrappedErr := fmt.Errorf("outer: %w", validationErr)

	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		expected bool
	}{
		{"validation error matches", validationErr, CategoryValidation, true},
		{"validation error does not match process", validationErr, CategoryProcess, false},
		{"process error matches", processErr, CategoryProcess, true},
		{"standard error matches nothing", standardErr, CategoryValidation, false},
		{"wrapped error still matches", wrappedErr, CategoryValidation, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsCategory(test.err, test.category); got != test.expected {
				t.Errorf("IsCategory() = %v, want %v", got, test.expected)
			}
		})
	}
}

func TestNotFoundPredicate(t *testing.T) {
	err := NotFound("unknown build session: abc12345")
	if !IsNotFound(err) {
		t.Error("IsNotFound should match a NotFound error")
	}
	if IsNotFound(fmt.Errorf("plain")) {
		t.Error("IsNotFound should not match a plain error")
	}
	if IsNotFound(nil) {
		t.Error("IsNotFound should not match nil")
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := StorageError("failed to persist state", cause)

	if !stdErrors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
}

func TestRetryability(t *testing.T) {
	if !IsRetryable(StorageError("save failed", nil)) {
		t.Error("storage errors are retryable")
	}
	if !IsRetryable(TimeoutError("configure step timed out")) {
		t.Error("timeout errors are retryable")
	}
	if IsRetryable(ValidationError("bad input")) {
		t.Error("validation errors are not retryable")
	}
}

func TestGetCategory(t *testing.T) {
	if got := GetCategory(ConflictError("another build is running")); got != CategoryConflict {
		t.Errorf("GetCategory = %v, want conflict", got)
	}
	if got := GetCategory(fmt.Errorf("plain")); got != CategoryInternal {
		t.Errorf("GetCategory(plain) = %v, want internal", got)
	}
}

func TestCLIErrorAdapterExitCodes(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, nil)

	tests := []struct {
		err      error
		expected int
	}{
		{nil, 0},
		{ValidationError("bad target"), 2},
		{ConflictError("busy"), 3},
		{NotFound("unknown session"), 4},
		{ProcessError("spawn failed", nil), 11},
		{StorageError("save failed", nil), 12},
		{fmt.Errorf("plain"), 1},
	}

	for _, test := range tests {
		if got := adapter.ExitCodeFor(test.err); got != test.expected {
			t.Errorf("ExitCodeFor(%v) = %d, want %d", test.err, got, test.expected)
		}
	}
}

func TestCLIErrorAdapterFormat(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, nil)

	if got := adapter.FormatError(ValidationError("bad target name")); got != "bad target name" {
		t.Errorf("validation errors print bare message, got %q", got)
	}
	if got := adapter.FormatError(NotFound("unknown build session")); got != "not_found: unknown build session" {
		t.Errorf("FormatError = %q", got)
	}

	verbose := NewCLIErrorAdapter(true, nil)
	if got := verbose.FormatError(NotFound("unknown build session")); got != "not_found (warning): unknown build session" {
		t.Errorf("verbose FormatError = %q", got)
	}
}
