package domain

import (
	"errors"
	"fmt"
	"time"
)

// ServiceError represents a standardized error response
type ServiceError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeShapeMismatch  = "SHAPE_MISMATCH"
	ErrCodeStorage        = "STORAGE_ERROR"
	ErrCodeLLMUnavailable = "LLM_UNAVAILABLE"
	ErrCodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewServiceError creates a new ServiceError with timestamp
func NewServiceError(code, message, details, requestID string) *ServiceError {
	return &ServiceError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ErrorCode maps an error to the closest service error code.
func ErrorCode(err error) string {
	var vErr *ValidationError
	var sErr *ServiceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &sErr):
		return sErr.Code
	case errors.As(err, &vErr):
		return ErrCodeValidation
	case errors.Is(err, ErrShapeMismatch), errors.Is(err, ErrEmptyTrainingSet):
		return ErrCodeShapeMismatch
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrInvalidFusion), errors.Is(err, ErrInvalidProbability):
		return ErrCodeInvalidInput
	default:
		return ErrCodeInternalServer
	}
}
