package session

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/upb/ticketing-shell/internal/shared"
)

// Account is a locally configured sign-in for MemorySource
type Account struct {
	Email        string
	Password     string
	DisplayName  string
	AssignedRole Role
}

// MemorySource is an in-process identity provider backed by a fixed set of
// accounts. It stands in for the primary session service in development and
// in tests. It settles immediately with no signed-in user.
type MemorySource struct {
	*Emitter

	name     string
	mu       sync.RWMutex
	accounts map[string]Account
	ids      map[string]string
}

// NewMemorySource creates a provider called name with the given accounts
func NewMemorySource(name string, accounts ...Account) *MemorySource {
	m := &MemorySource{
		Emitter:  &Emitter{},
		name:     name,
		accounts: make(map[string]Account),
		ids:      make(map[string]string),
	}
	for _, a := range accounts {
		m.AddAccount(a)
	}
	m.Emit(nil)
	return m
}

// AddAccount registers or replaces an account
func (m *MemorySource) AddAccount(a Account) {
	key := strings.ToLower(strings.TrimSpace(a.Email))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[key] = a
	if _, ok := m.ids[key]; !ok {
		m.ids[key] = uuid.NewString()
	}
}

// Name implements IdentitySource
func (m *MemorySource) Name() string {
	return m.name
}

// SignIn checks the email/password pair against the configured accounts
func (m *MemorySource) SignIn(ctx context.Context, creds Credentials) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.WrapAuth("sign-in cancelled", err)
	}
	key := strings.ToLower(strings.TrimSpace(creds.Email))

	m.mu.RLock()
	account, ok := m.accounts[key]
	id := m.ids[key]
	m.mu.RUnlock()

	if !ok || subtle.ConstantTimeCompare([]byte(account.Password), []byte(creds.Password)) != 1 {
		return nil, shared.ErrInvalidCredentials
	}

	identity := &Identity{
		ID:           id,
		Email:        account.Email,
		DisplayName:  account.DisplayName,
		Provider:     m.name,
		AssignedRole: account.AssignedRole,
	}
	m.Emit(identity)
	return identity.Clone(), nil
}

// SignOut implements IdentitySource
func (m *MemorySource) SignOut(ctx context.Context) error {
	m.Emit(nil)
	return nil
}

// ParseAccounts parses "email:password[:role[:display name]]" entries
// separated by commas. Malformed entries are skipped.
func ParseAccounts(spec string) []Account {
	var accounts []Account
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		a := Account{Email: parts[0], Password: parts[1]}
		if len(parts) > 2 {
			if r, ok := ParseRole(parts[2]); ok {
				a.AssignedRole = r
			}
		}
		if len(parts) > 3 {
			a.DisplayName = parts[3]
		}
		accounts = append(accounts, a)
	}
	return accounts
}
