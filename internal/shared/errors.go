package shared

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeProviderUnavailable   ErrorType = "provider_unavailable"
	ErrorTypeAuth                  ErrorType = "auth"
	ErrorTypeGuardMisconfiguration ErrorType = "guard_misconfiguration"
	ErrorTypeValidation            ErrorType = "validation"
	ErrorTypeRateLimit             ErrorType = "rate_limit"
	ErrorTypeNotFound              ErrorType = "not_found"
	ErrorTypeInternal              ErrorType = "internal"
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

var (
	// Provider availability
	ErrProviderUnavailable = NewDomainError(ErrorTypeProviderUnavailable, "identity provider not configured", nil)

	// Explicit sign-in / sign-up / verify failures
	ErrAuth               = NewDomainError(ErrorTypeAuth, "authentication failed", nil)
	ErrInvalidCredentials = NewDomainError(ErrorTypeAuth, "invalid credentials", nil)
	ErrProviderTransport  = NewDomainError(ErrorTypeAuth, "identity provider unreachable", nil)
	ErrSessionExpired     = NewDomainError(ErrorTypeAuth, "session expired", nil)

	// Route table problems
	ErrGuardMisconfiguration = NewDomainError(ErrorTypeGuardMisconfiguration, "route guard misconfigured", nil)

	ErrInvalidInput    = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrTooManyAttempts = NewDomainError(ErrorTypeRateLimit, "too many sign-in attempts", nil)
	ErrRouteNotFound   = NewDomainError(ErrorTypeNotFound, "route not found", nil)
	ErrInternal        = NewDomainError(ErrorTypeInternal, "internal error", nil)
)

// IsProviderUnavailableError checks if an error reports a missing identity provider
func IsProviderUnavailableError(err error) bool {
	return hasType(err, ErrorTypeProviderUnavailable)
}

// IsAuthError checks if an error is a credential or transport failure
func IsAuthError(err error) bool {
	return hasType(err, ErrorTypeAuth)
}

// IsGuardMisconfigurationError checks if an error is a route table error
func IsGuardMisconfigurationError(err error) bool {
	return hasType(err, ErrorTypeGuardMisconfiguration)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return hasType(err, ErrorTypeRateLimit)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
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

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapAuth wraps a provider failure raised by an explicit sign-in action
func WrapAuth(message string, err error) error {
	return NewDomainError(ErrorTypeAuth, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
