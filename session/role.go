package session

import "strings"

// Role determines which routes a session may view
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOrganizer Role = "organizer"
	RoleUser      Role = "user"
	RoleGuest     Role = "guest"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOrganizer, RoleUser, RoleGuest:
		return true
	}
	return false
}

// Rank orders roles by privilege. Unknown roles rank below guest.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleOrganizer:
		return 2
	case RoleUser:
		return 1
	case RoleGuest:
		return 0
	}
	return -1
}

func (r Role) String() string {
	return string(r)
}

// ParseRole parses a role name case-insensitively. The second result is false
// when the name is not a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// ContainsRole reports whether roles contains r
func ContainsRole(roles []Role, r Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}
