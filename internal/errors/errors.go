// Package errors provides a lightweight structured error type (DeployError)
// for category-based classification of deployment failures in the HTTP
// client, the pipeline, and the CLI.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of a deployment error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryAuth       ErrorCategory = "auth"

	// Remote API integration errors
	CategoryNetwork ErrorCategory = "network"
	CategorySession ErrorCategory = "session"
	CategoryUpload  ErrorCategory = "upload"
	CategoryImport  ErrorCategory = "import"

	// Local packaging errors
	CategoryArchive    ErrorCategory = "archive"
	CategoryFileSystem ErrorCategory = "filesystem"

	// Best-effort side channel errors
	CategoryMetadata ErrorCategory = "metadata"

	// Runtime and infrastructure errors
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops the deployment
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// DeployError is a structured error with category, severity, and context
type DeployError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for DeployError
type ContextFields map[string]any

// Error implements the error interface
func (e *DeployError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *DeployError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *DeployError) WithContext(key string, value any) *DeployError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new DeployError
func New(category ErrorCategory, severity ErrorSeverity, message string) *DeployError {
	return &DeployError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new DeployError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *DeployError {
	return &DeployError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error belongs to a specific category, unwrapping
// as needed.
func IsCategory(err error, category ErrorCategory) bool {
	var de *DeployError
	if errors.As(err, &de) {
		return de.Category == category
	}
	return false
}

// IsFatal reports whether an error should abort the deployment.
// Unclassified errors are treated as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var de *DeployError
	if errors.As(err, &de) {
		return de.Severity == SeverityFatal
	}
	return true
}

// GetCategory extracts the category from an error, or returns
// CategoryInternal if no DeployError is in the chain.
func GetCategory(err error) ErrorCategory {
	var de *DeployError
	if errors.As(err, &de) {
		return de.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error
func ValidationError(message string) *DeployError {
	return &DeployError{
		Category: CategoryValidation,
		Severity: SeverityFatal,
		Message:  message,
	}
}

// ConfigError creates a new configuration error
func ConfigError(message string) *DeployError {
	return &DeployError{
		Category: CategoryConfig,
		Severity: SeverityFatal,
		Message:  message,
	}
}
