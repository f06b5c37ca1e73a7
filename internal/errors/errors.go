// Package errors provides a lightweight structured error type (BuildMonError)
// for category-based classification and retry semantics in the orchestrator and CLI.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of a BuildMon error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Build and toolchain errors
	CategoryProcess   ErrorCategory = "process"
	CategoryBuild     ErrorCategory = "build"
	CategoryTimeout   ErrorCategory = "timeout"
	CategoryConflict  ErrorCategory = "conflict"
	CategoryAnalytics ErrorCategory = "analytics"

	// Runtime and infrastructure errors
	CategoryStorage  ErrorCategory = "storage"
	CategoryNotFound ErrorCategory = "not_found"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// BuildMonError is a structured error with category, retryability, and context
type BuildMonError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for BuildMonError
type ContextFields map[string]any

// Error implements the error interface
func (e *BuildMonError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *BuildMonError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *BuildMonError) WithContext(key string, value any) *BuildMonError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new BuildMonError
func New(category ErrorCategory, severity ErrorSeverity, message string) *BuildMonError {
	return &BuildMonError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: false,
	}
}

// Wrap creates a new BuildMonError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *BuildMonError {
	return &BuildMonError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	var bme *BuildMonError
	if errors.As(err, &bme) {
		return bme.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var bme *BuildMonError
	if errors.As(err, &bme) {
		return bme.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a BuildMonError
func GetCategory(err error) ErrorCategory {
	var bme *BuildMonError
	if errors.As(err, &bme) {
		return bme.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error
func ValidationError(message string) *BuildMonError {
	return &BuildMonError{
		Category:  CategoryValidation,
		Severity:  SeverityWarning,
		Message:   message,
		Retryable: false,
	}
}

// NotFound creates a typed not-found error for unknown session or resource lookups
func NotFound(message string) *BuildMonError {
	return &BuildMonError{
		Category:  CategoryNotFound,
		Severity:  SeverityWarning,
		Message:   message,
		Retryable: false,
	}
}

// IsNotFound reports whether err is a not-found BuildMonError
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// ProcessError creates a new process error, typically from a failed spawn
func ProcessError(message string, cause error) *BuildMonError {
	return &BuildMonError{
		Category:  CategoryProcess,
		Severity:  SeverityError,
		Message:   message,
		Cause:     cause,
		Retryable: false,
	}
}

// StorageError creates a retryable storage error; persistence failures must
// never abort an in-progress build.
func StorageError(message string, cause error) *BuildMonError {
	return &BuildMonError{
		Category:  CategoryStorage,
		Severity:  SeverityWarning,
		Message:   message,
		Cause:     cause,
		Retryable: true,
	}
}

// TimeoutError creates a timeout error with a distinguishable category
func TimeoutError(message string) *BuildMonError {
	return &BuildMonError{
		Category:  CategoryTimeout,
		Severity:  SeverityError,
		Message:   message,
		Retryable: true,
	}
}

// ConflictError signals that another build is already running in the project
func ConflictError(message string) *BuildMonError {
	return &BuildMonError{
		Category:  CategoryConflict,
		Severity:  SeverityWarning,
		Message:   message,
		Retryable: true,
	}
}
