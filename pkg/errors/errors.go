package errors

import (
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeInternal indicates an internal error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from an external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeWrite indicates an unacknowledged document write; fatal for a run
	ErrorTypeWrite ErrorType = "WRITE"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	StudyID string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// NewWriteError creates an error for a store write that was not acknowledged.
// The study id identifies the offending record so operators can pinpoint
// where a run aborted.
func NewWriteError(studyID string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeWrite,
		Message: fmt.Sprintf("store did not acknowledge write for study %s", studyID),
		StudyID: studyID,
		Err:     err,
	}
}

// IsWriteError reports whether err is an unacknowledged-write error.
func IsWriteError(err error) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == ErrorTypeWrite
}
