package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is the merged authentication snapshot. Values handed out by the
// store are immutable: identities are copies owned by the snapshot.
//
// Role is guest iff both PrimaryUser and FederatedUser are nil.
type Session struct {
	// ID identifies one authenticated session. A new ID is minted on every
	// transition out of guest; it is uuid.Nil while guest.
	ID            uuid.UUID `json:"id"`
	PrimaryUser   *Identity `json:"primary_user,omitempty"`
	FederatedUser *Identity `json:"federated_user,omitempty"`
	Role          Role      `json:"role"`
	Version       uint64    `json:"version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GuestSession returns the initial state of every store
func GuestSession() Session {
	return Session{Role: RoleGuest}
}

// IsGuest reports whether no provider has a signed-in user
func (s Session) IsGuest() bool {
	return s.Role == RoleGuest
}

// IsAuthenticated is the inverse of IsGuest
func (s Session) IsAuthenticated() bool {
	return !s.IsGuest()
}

// User returns the identity to present for the session, preferring the
// primary provider.
func (s Session) User() *Identity {
	if s.PrimaryUser != nil {
		return s.PrimaryUser
	}
	return s.FederatedUser
}

// Email returns the email of the presented identity, if any
func (s Session) Email() string {
	if u := s.User(); u != nil {
		return u.Email
	}
	return ""
}

// DisplayName returns the label of the presented identity, if any
func (s Session) DisplayName() string {
	return s.User().Label()
}
