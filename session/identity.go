package session

import "context"

// Provider names used for the two identity slots
const (
	ProviderPrimary   = "primary"
	ProviderFederated = "federated"
)

// Identity is the opaque user handle reported by one identity provider.
// Only presence, email and display name matter to role resolution.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Provider    string `json:"provider"`

	// AssignedRole is an out-of-band role elevation that arrives already
	// resolved (identity-provider group, role assignment table). Empty when
	// nothing was assigned.
	AssignedRole Role `json:"assigned_role,omitempty"`
}

// Label returns the most human-friendly name available for the identity
func (i *Identity) Label() string {
	if i == nil {
		return ""
	}
	switch {
	case i.DisplayName != "":
		return i.DisplayName
	case i.Email != "":
		return i.Email
	case i.Phone != "":
		return i.Phone
	}
	return i.ID
}

// Clone returns a copy that the caller may keep without sharing state with
// the provider that produced it.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Credentials carries the inputs of an explicit sign-in action. Each provider
// reads the fields it understands and validates them itself.
type Credentials struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Phone    string `json:"phone,omitempty"`

	// Federated authorization-code flow
	Code        string `json:"code,omitempty"`
	RedirectURI string `json:"redirect_uri,omitempty"`
	State       string `json:"state,omitempty"`

	// Pre-obtained ID token (phone OTP or embedded sign-in widget)
	IDToken string `json:"id_token,omitempty"`
}

// IdentitySource is one independent identity provider. Implementations report
// sign-in and sign-out asynchronously through OnChange; a nil identity means
// the provider has no signed-in user.
type IdentitySource interface {
	// Name identifies the provider in logs and audit records
	Name() string

	// SignIn performs an explicit, user-initiated sign-in. Failures are
	// returned as auth errors and are never retried.
	SignIn(ctx context.Context, creds Credentials) (*Identity, error)

	// SignOut ends the provider session
	SignOut(ctx context.Context) error

	// OnChange registers a listener for identity changes. The returned
	// function revokes the subscription.
	OnChange(fn func(*Identity)) (unsubscribe func(), err error)
}
