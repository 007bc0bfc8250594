package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeAuth, "invalid credentials", baseErr)

	assert.Equal(t, ErrorTypeAuth, domainErr.Type)
	assert.Equal(t, "invalid credentials", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name:    "error with wrapped error",
			err:     &DomainError{Type: ErrorTypeAuth, Message: "identity provider unreachable", Err: errors.New("dial tcp: timeout")},
			wantMsg: "auth: identity provider unreachable (dial tcp: timeout)",
		},
		{
			name:    "error without wrapped error",
			err:     &DomainError{Type: ErrorTypeValidation, Message: "invalid input"},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_UnwrapAndIs(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
	assert.ErrorIs(t, domainErr, baseErr)
	assert.ErrorIs(t, domainErr, ErrInternal)
	assert.NotErrorIs(t, domainErr, ErrInvalidCredentials)

	wrapped := fmt.Errorf("sign in: %w", NewDomainError(ErrorTypeAuth, "session expired", nil))
	assert.ErrorIs(t, wrapped, ErrAuth)
	assert.ErrorIs(t, wrapped, ErrSessionExpired, "errors of one type match each other")
}

func TestDomainError_WithDetail(t *testing.T) {
	err := (&DomainError{Type: ErrorTypeValidation}).WithDetail("field", "email")
	require.NotNil(t, err.Details)
	assert.Equal(t, "email", err.Details["field"])
	assert.Equal(t, map[string]interface{}{"field": "email"}, GetErrorDetails(fmt.Errorf("wrapped: %w", err)))
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}

func TestErrorTypeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		typ   ErrorType
	}{
		{"provider unavailable", ErrProviderUnavailable, IsProviderUnavailableError, ErrorTypeProviderUnavailable},
		{"auth", WrapAuth("sign-in failed", errors.New("x")), IsAuthError, ErrorTypeAuth},
		{"guard misconfiguration", ErrGuardMisconfiguration, IsGuardMisconfigurationError, ErrorTypeGuardMisconfiguration},
		{"validation", ErrInvalidInput, IsValidationError, ErrorTypeValidation},
		{"rate limit", ErrTooManyAttempts, IsRateLimitError, ErrorTypeRateLimit},
		{"not found", ErrRouteNotFound, IsNotFoundError, ErrorTypeNotFound},
		{"internal", WrapInternal("boom", nil), IsInternalError, ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("context: %w", tt.err)))
			assert.False(t, tt.check(errors.New("plain")))
			assert.Equal(t, tt.typ, GetErrorType(tt.err))
		})
	}

	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
	assert.True(t, IsGuardMisconfigurationError(WrapError(ErrorTypeGuardMisconfiguration, "loop", nil)))
}
