package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/ticketing-shell/session"
)

// RoleAssignment elevates the account behind an email address to a role.
// Assignments are granted out of band by back-office staff and are only
// honoured by the assigned-role resolver.
type RoleAssignment struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	Email     string       `json:"email" db:"email"` // lower-cased
	Role      session.Role `json:"role" db:"role"`
	GrantedBy string       `json:"granted_by,omitempty" db:"granted_by"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the RoleAssignment model
func (RoleAssignment) TableName() string {
	return "role_assignments"
}

// NewRoleAssignment creates a new RoleAssignment instance
func NewRoleAssignment(email string, role session.Role, grantedBy string) *RoleAssignment {
	now := time.Now()
	return &RoleAssignment{
		ID:        uuid.New(),
		Email:     NormalizeEmail(email),
		Role:      role,
		GrantedBy: grantedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Elevates returns true if the assignment grants more than the default user role
func (a *RoleAssignment) Elevates() bool {
	return a.Role.Rank() > session.RoleUser.Rank()
}

// NormalizeEmail is the key form used for assignment lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
