package cognito

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/ticketing-shell/session"
)

// ErrMissingClaim is returned when a required claim is missing
var ErrMissingClaim = errors.New("missing required claim")

// Claims are the Cognito ID token claims the shell reads
type Claims struct {
	jwt.RegisteredClaims
	Sub                 string   `json:"sub"`
	Email               string   `json:"email,omitempty"`
	EmailVerified       bool     `json:"email_verified,omitempty"`
	PhoneNumber         string   `json:"phone_number,omitempty"`
	PhoneNumberVerified bool     `json:"phone_number_verified,omitempty"`
	Name                string   `json:"name,omitempty"`
	TokenUse            string   `json:"token_use"`
	AuthTime            int64    `json:"auth_time,omitempty"`
	CognitoUsername     string   `json:"cognito:username,omitempty"`
	Groups              []string `json:"cognito:groups,omitempty"`

	// Role is assigned by the user pool administrators
	Role string `json:"custom:userRole,omitempty"`
}

// ParsedClaims are validated claims with typed fields
type ParsedClaims struct {
	Sub           uuid.UUID
	Email         string
	EmailVerified bool
	Phone         string
	Name          string
	Username      string
	TokenUse      string
	Role          session.Role
	Groups        []string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

func parseClaims(claims *Claims) (*ParsedClaims, error) {
	if claims.Sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	sub, err := uuid.Parse(claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("invalid sub UUID: %w", err)
	}
	if claims.Email == "" && claims.PhoneNumber == "" {
		return nil, fmt.Errorf("%w: email or phone_number", ErrMissingClaim)
	}

	parsed := &ParsedClaims{
		Sub:           sub,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Phone:         claims.PhoneNumber,
		Name:          claims.Name,
		Username:      claims.CognitoUsername,
		TokenUse:      claims.TokenUse,
		Role:          assignedRole(claims),
		Groups:        append([]string(nil), claims.Groups...),
	}
	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}

	return parsed, nil
}

// assignedRole prefers custom:userRole and falls back to the highest
// ranked group named after a role. Unknown values assign nothing.
func assignedRole(claims *Claims) session.Role {
	if role, ok := session.ParseRole(claims.Role); ok && role != session.RoleGuest {
		return role
	}
	var best session.Role
	for _, group := range claims.Groups {
		role, ok := session.ParseRole(group)
		if !ok || role == session.RoleGuest {
			continue
		}
		if best == "" || role.Rank() > best.Rank() {
			best = role
		}
	}
	return best
}

// ToIdentity converts the claims to a federated identity
func (p *ParsedClaims) ToIdentity() *session.Identity {
	name := p.Name
	if name == "" {
		name = p.Username
	}
	return &session.Identity{
		ID:           p.Sub.String(),
		Email:        p.Email,
		DisplayName:  name,
		Phone:        p.Phone,
		Provider:     session.ProviderFederated,
		AssignedRole: p.Role,
	}
}
