package services

import (
	"errors"
	"fmt"

	"learnhub/internal/validation"
)

// ===============================
// ERROR TYPES
// ===============================

const (
	ErrorTypeValidation     = "VALIDATION_ERROR"
	ErrorTypePersistence    = "PERSISTENCE_ERROR"
	ErrorTypeDuplicateAward = "DUPLICATE_AWARD"
)

// ServiceError represents a structured service error
type ServiceError struct {
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// ===============================
// ERROR CONSTRUCTORS
// ===============================

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeValidation,
		Message: message,
		Cause:   cause,
	}
}

// NewPersistenceError creates an error for a failed or aborted store operation
func NewPersistenceError(message string, cause error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypePersistence,
		Message: message,
		Cause:   cause,
	}
}

// NewDuplicateAwardError reports a badge that was already held. The
// progression engine treats it as a silent no-op.
func NewDuplicateAwardError(userID, badgeID string) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeDuplicateAward,
		Message: fmt.Sprintf("badge %s already awarded", badgeID),
		Code:    "BADGE_ALREADY_AWARDED",
		Details: map[string]interface{}{
			"user_id":  userID,
			"badge_id": badgeID,
		},
	}
}

// ValidationError represents detailed validation errors
type ValidationError struct {
	*ServiceError
	Fields []FieldError `json:"fields,omitempty"`
}

// FieldError represents a single field validation error
type FieldError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
}

// NewDetailedValidationError creates a validation error with field details
func NewDetailedValidationError(message string, fields []FieldError) *ValidationError {
	return &ValidationError{
		ServiceError: &ServiceError{
			Type:    ErrorTypeValidation,
			Message: message,
		},
		Fields: fields,
	}
}

// validationErrorFrom converts struct validation failures into a ValidationError.
func validationErrorFrom(message string, err error) error {
	failures := validation.Fields(err)
	if len(failures) == 0 {
		return NewValidationError(message, err)
	}
	fields := make([]FieldError, 0, len(failures))
	for _, f := range failures {
		fields = append(fields, FieldError{
			Field:   f.Field,
			Value:   f.Value,
			Message: f.Message(),
			Code:    f.Tag,
		})
	}
	verr := NewDetailedValidationError(message, fields)
	verr.Cause = err
	return verr
}

// ===============================
// ERROR UTILITIES
// ===============================

// GetServiceError extracts a ServiceError from an error chain, or nil
func GetServiceError(err error) *ServiceError {
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr.ServiceError
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType string) bool {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Type == errorType
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return IsErrorType(err, ErrorTypeValidation)
}

// IsPersistenceError checks if an error is a persistence error
func IsPersistenceError(err error) bool {
	return IsErrorType(err, ErrorTypePersistence)
}

// IsDuplicateAwardError checks if an error is a duplicate award
func IsDuplicateAwardError(err error) bool {
	return IsErrorType(err, ErrorTypeDuplicateAward)
}
