package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/upb/ticketing-shell/session"
)

// AuthAction represents the kind of authentication event being recorded
type AuthAction string

const (
	AuthActionSignIn       AuthAction = "sign_in"
	AuthActionSignInFailed AuthAction = "sign_in_failed"
	AuthActionSignOut      AuthAction = "sign_out"
	AuthActionRoleChanged  AuthAction = "role_changed"
	AuthActionAccessDenied AuthAction = "access_denied"
	AuthActionRateLimited  AuthAction = "rate_limited"
	AuthActionHomeRedirect AuthAction = "home_redirect"
)

// AuthEvent is one entry of the authentication trail
type AuthEvent struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	SessionID *uuid.UUID      `json:"session_id,omitempty" db:"session_id"`
	Action    AuthAction      `json:"action" db:"action"`
	Provider  string          `json:"provider,omitempty" db:"provider"`
	Subject   string          `json:"subject,omitempty" db:"subject"` // provider identity ID
	Email     string          `json:"email,omitempty" db:"email"`
	Role      session.Role    `json:"role" db:"role"`
	Path      string          `json:"path,omitempty" db:"path"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"` // JSONB
	IPAddress string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string          `json:"user_agent,omitempty" db:"user_agent"`
	RequestID string          `json:"request_id,omitempty" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
}

// TableName returns the table name for the AuthEvent model
func (AuthEvent) TableName() string {
	return "auth_events"
}

// NewAuthEvent creates a new AuthEvent instance
func NewAuthEvent(action AuthAction, role session.Role) *AuthEvent {
	return &AuthEvent{
		ID:        uuid.New(),
		Action:    action,
		Role:      role,
		Timestamp: time.Now(),
	}
}

// WithSession sets the session ID. Guest sessions carry no ID and are skipped.
func (e *AuthEvent) WithSession(sessionID uuid.UUID) *AuthEvent {
	if sessionID != uuid.Nil {
		e.SessionID = &sessionID
	}
	return e
}

// WithIdentity sets the provider and identity fields
func (e *AuthEvent) WithIdentity(provider string, id *session.Identity) *AuthEvent {
	e.Provider = provider
	if id != nil {
		e.Subject = id.ID
		e.Email = id.Email
	}
	return e
}

// WithPath sets the route the event refers to
func (e *AuthEvent) WithPath(path string) *AuthEvent {
	e.Path = path
	return e
}

// WithDetails sets the details
func (e *AuthEvent) WithDetails(details interface{}) *AuthEvent {
	if data, err := json.Marshal(details); err == nil {
		e.Details = data
	}
	return e
}

// WithRequest sets request metadata
func (e *AuthEvent) WithRequest(requestID, ipAddress, userAgent string) *AuthEvent {
	e.RequestID = requestID
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

// WithError sets error information
func (e *AuthEvent) WithError(err error) *AuthEvent {
	if err != nil {
		msg := err.Error()
		e.ErrorMessage = &msg
	}
	return e
}

// Failed returns true if the event records a failure
func (e *AuthEvent) Failed() bool {
	return e.ErrorMessage != nil
}
