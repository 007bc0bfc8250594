package assignment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/ticketing-shell/session"
)

type lookupFunc func(ctx context.Context, email string) (session.Role, error)

func (f lookupFunc) Lookup(ctx context.Context, email string) (session.Role, error) {
	return f(ctx, email)
}

func staticAssignments(roles map[string]session.Role) Lookuper {
	return lookupFunc(func(ctx context.Context, email string) (session.Role, error) {
		return roles[email], nil
	})
}

func TestDecorate_AnnotatesSignIn(t *testing.T) {
	src := session.NewMemorySource(session.ProviderPrimary,
		session.Account{Email: "org@example.com", Password: "pw"},
		session.Account{Email: "fan@example.com", Password: "pw"},
	)
	d := Decorate(src, staticAssignments(map[string]session.Role{"org@example.com": session.RoleOrganizer}), nil)
	assert.Equal(t, session.ProviderPrimary, d.Name())

	id, err := d.SignIn(context.Background(), session.Credentials{Email: "org@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, session.RoleOrganizer, id.AssignedRole)

	id, err = d.SignIn(context.Background(), session.Credentials{Email: "fan@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Empty(t, id.AssignedRole)

	_, err = d.SignIn(context.Background(), session.Credentials{Email: "fan@example.com", Password: "nope"})
	assert.Error(t, err)
}

func TestDecorate_AnnotatesEmissions(t *testing.T) {
	src := session.NewMemorySource(session.ProviderPrimary, session.Account{Email: "boss@example.com", Password: "pw"})
	d := Decorate(src, staticAssignments(map[string]session.Role{"boss@example.com": session.RoleAdmin}), nil)

	var seen []*session.Identity
	unsubscribe, err := d.OnChange(func(id *session.Identity) { seen = append(seen, id) })
	require.NoError(t, err)
	defer unsubscribe()

	_, err = d.SignIn(context.Background(), session.Credentials{Email: "boss@example.com", Password: "pw"})
	require.NoError(t, err)

	require.Len(t, seen, 2) // replayed "no user", then the sign-in
	assert.Nil(t, seen[0])
	require.NotNil(t, seen[1])
	assert.Equal(t, session.RoleAdmin, seen[1].AssignedRole)
	assert.Empty(t, src.Current().AssignedRole, "the provider's own identity is not modified")
}

func TestDecorate_KeepsHigherProviderRole(t *testing.T) {
	src := session.NewMemorySource(session.ProviderPrimary,
		session.Account{Email: "a@example.com", Password: "pw", AssignedRole: session.RoleAdmin})
	d := Decorate(src, staticAssignments(map[string]session.Role{"a@example.com": session.RoleUser}), nil)

	id, err := d.SignIn(context.Background(), session.Credentials{Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, session.RoleAdmin, id.AssignedRole)
}

func TestDecorate_LookupFailurePassesThrough(t *testing.T) {
	src := session.NewMemorySource(session.ProviderPrimary, session.Account{Email: "a@example.com", Password: "pw"})
	d := Decorate(src, lookupFunc(func(ctx context.Context, email string) (session.Role, error) {
		return "", errors.New("database down")
	}), nil)

	id, err := d.SignIn(context.Background(), session.Credentials{Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", id.Email)
	assert.Empty(t, id.AssignedRole)
}

func TestDecorate_FeedsAssignedRoleResolver(t *testing.T) {
	src := session.NewMemorySource(session.ProviderPrimary, session.Account{Email: "org@example.com", Password: "pw"})
	d := Decorate(src, staticAssignments(map[string]session.Role{"org@example.com": session.RoleOrganizer}), nil)

	store := session.NewStore(session.StoreConfig{Primary: d, Resolver: session.AssignedRoleResolver})
	store.Start()
	defer store.Close()

	_, err := d.SignIn(context.Background(), session.Credentials{Email: "org@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, session.RoleOrganizer, store.GetSession().Role)
}

func TestDecorate_NilListener(t *testing.T) {
	d := Decorate(session.NewMemorySource(session.ProviderPrimary), staticAssignments(nil), nil)
	_, err := d.OnChange(nil)
	assert.ErrorIs(t, err, session.ErrNilListener)
}
