package guard

import (
	"fmt"

	"github.com/upb/ticketing-shell/session"
)

// State is the position of a mounted guard in its state machine.
// Checking is initial; the other states are reached per navigation.
type State int

const (
	StateChecking State = iota
	StateAllowed
	StateDeniedAuth
	StateDeniedRole
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateAllowed:
		return "allowed"
	case StateDeniedAuth:
		return "denied_auth"
	case StateDeniedRole:
		return "denied_role"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name in JSON views
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Denied reports whether s is one of the denied states
func (s State) Denied() bool {
	return s == StateDeniedAuth || s == StateDeniedRole
}

// Policy is the access rule declared for one route
type Policy struct {
	AllowedRoles []session.Role `yaml:"allowed_roles" json:"allowed_roles,omitempty" validate:"dive,oneof=admin organizer user guest"`
	FallbackPath string         `yaml:"fallback_path" json:"fallback_path,omitempty" validate:"omitempty,startswith=/"`
	RequireAuth  bool           `yaml:"require_auth" json:"require_auth"`
}

// ExcludesGuest reports whether a guest session is kept out. A non-empty
// AllowedRoles implies guest exclusion unless guest is listed explicitly,
// even when RequireAuth is false.
func (p Policy) ExcludesGuest() bool {
	if p.RequireAuth {
		return true
	}
	return len(p.AllowedRoles) > 0 && !session.ContainsRole(p.AllowedRoles, session.RoleGuest)
}

// ImplicitGuestExclusion reports the misconfiguration where guests are only
// excluded through AllowedRoles, without RequireAuth
func (p Policy) ImplicitGuestExclusion() bool {
	return !p.RequireAuth && p.ExcludesGuest()
}

// Evaluate maps a role to the state the guard settles in
func (p Policy) Evaluate(role session.Role) State {
	if role == session.RoleGuest && p.ExcludesGuest() {
		return StateDeniedAuth
	}
	if len(p.AllowedRoles) > 0 && !session.ContainsRole(p.AllowedRoles, role) {
		return StateDeniedRole
	}
	return StateAllowed
}

// Decision is what a guard shows for a route: the state plus the required
// versus actual role, used for the inline denied view and for diagnostics.
type Decision struct {
	State         State          `json:"state"`
	Path          string         `json:"path"`
	RequiredRoles []session.Role `json:"required_roles,omitempty"`
	RequireAuth   bool           `json:"require_auth"`
	ActualRole    session.Role   `json:"actual_role"`
	RedirectTo    string         `json:"redirect_to,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}

func reasonFor(state State) string {
	switch state {
	case StateChecking:
		return "verifying session"
	case StateDeniedAuth:
		return "sign in to continue"
	case StateDeniedRole:
		return "your role does not have access to this page"
	}
	return ""
}
