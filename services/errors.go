package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeConfig             ErrorType = "config_error"
	ErrorTypeAuth               ErrorType = "auth_error"
	ErrorTypeQuotaExhausted     ErrorType = "quota_exhausted"
	ErrorTypeParse              ErrorType = "parse_error"
	ErrorTypeDeadlineExceeded   ErrorType = "deadline_exceeded"
	ErrorTypeAllProvidersFailed ErrorType = "all_providers_failed"
	ErrorTypeInternal           ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables, usable as errors.Is targets

var (
	// Validation Errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyPrompt  = NewDomainError(ErrorTypeValidation, "prompt cannot be empty", nil)

	// Generation failures
	ErrNoProviders         = NewDomainError(ErrorTypeConfig, "no usable provider configured", nil)
	ErrCredentialsRejected = NewDomainError(ErrorTypeAuth, "provider rejected credentials", nil)
	ErrQuotaExhausted      = NewDomainError(ErrorTypeQuotaExhausted, "provider quota exhausted", nil)
	ErrUnparseableOutput   = NewDomainError(ErrorTypeParse, "provider output is not valid JSON for the expected shape", nil)
	ErrDeadlineExceeded    = NewDomainError(ErrorTypeDeadlineExceeded, "generation deadline exceeded", nil)
	ErrAllProvidersFailed  = NewDomainError(ErrorTypeAllProvidersFailed, "all providers failed", nil)

	// Internal Errors
	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// Error type checking helper functions. Sentinels above compare by type, so
// errors.Is(err, ErrQuotaExhausted) covers the remaining kinds.

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsDeadlineExceededError checks if an error is a deadline error
func IsDeadlineExceededError(err error) bool {
	return hasType(err, ErrorTypeDeadlineExceeded)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}
