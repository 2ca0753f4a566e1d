package errors

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// AppError represents a standardized application error
type AppError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component"`
	Operation  string                 `json:"operation"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Severity   Severity               `json:"severity"`
}

// Severity levels for errors
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Error codes
const (
	// Argument and wiring errors
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodePreconditionFailed = "PRECONDITION_FAILED"

	// Configuration errors
	CodeConfigInvalid  = "CONFIG_INVALID"
	CodeConfigNotFound = "CONFIG_NOT_FOUND"

	// Processing errors
	CodeProcessingFailed  = "PROCESSING_FAILED"
	CodeProcessingInvalid = "PROCESSING_INVALID_DATA"

	// Output errors
	CodeSinkSendFailed  = "SINK_SEND_FAILED"
	CodeSinkUnavailable = "SINK_UNAVAILABLE"
)

// New creates a new standardized error
func New(code, component, operation, message string) *AppError {
	_, file, line, _ := runtime.Caller(1)

	return &AppError{
		Code:       code,
		Message:    message,
		Component:  component,
		Operation:  operation,
		StackTrace: fmt.Sprintf("%s:%d", file, line),
		Metadata:   make(map[string]interface{}),
		Timestamp:  time.Now(),
		Severity:   SeverityMedium,
	}
}

// NewCritical creates a critical error
func NewCritical(code, component, operation, message string) *AppError {
	err := New(code, component, operation, message)
	err.Severity = SeverityCritical
	return err
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Wrap wraps another error as the cause
func (e *AppError) Wrap(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithSeverity sets the severity level
func (e *AppError) WithSeverity(severity Severity) *AppError {
	e.Severity = severity
	return e
}

// IsCritical returns true if the error is critical
func (e *AppError) IsCritical() bool {
	return e.Severity == SeverityCritical
}

// IsRecoverable returns true if the error might be recoverable
func (e *AppError) IsRecoverable() bool {
	switch e.Severity {
	case SeverityCritical, SeverityHigh:
		return false
	default:
		return true
	}
}

// ToMap converts the error to a map for structured logging
func (e *AppError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code":      e.Code,
		"error_message":   e.Message,
		"error_component": e.Component,
		"error_operation": e.Operation,
		"error_severity":  string(e.Severity),
	}

	if e.Cause != nil {
		result["error_cause"] = e.Cause.Error()
	}

	for k, v := range e.Metadata {
		result["error_meta_"+k] = v
	}

	return result
}

// InvalidArgument creates an error for a rejected constructor or call argument
func InvalidArgument(component, operation, message string) *AppError {
	return NewCritical(CodeInvalidArgument, component, operation, message)
}

// PreconditionFailed creates an error for a call made before a required collaborator was wired
func PreconditionFailed(component, operation, message string) *AppError {
	return NewCritical(CodePreconditionFailed, component, operation, message)
}

// ConfigError creates a configuration error
func ConfigError(operation, message string) *AppError {
	return NewCritical(CodeConfigInvalid, "config", operation, message)
}

// ProcessingError creates an invalid-input error. These are recoverable: the row is dropped.
func ProcessingError(operation, message string) *AppError {
	return New(CodeProcessingInvalid, "processing", operation, message).WithSeverity(SeverityLow)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError converts an error to AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError carrying code
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// WrapError wraps a standard error into an AppError
func WrapError(err error, code, component, operation, message string) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	return New(code, component, operation, message).Wrap(err)
}
