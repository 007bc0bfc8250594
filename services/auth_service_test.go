package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/ticketing-shell/internal/shared"
	"github.com/upb/ticketing-shell/services/audit"
	"github.com/upb/ticketing-shell/services/ratelimit"
	"github.com/upb/ticketing-shell/session"
	"golang.org/x/time/rate"
)

// failingSource signs in nobody and fails to sign out
type failingSource struct {
	*session.Emitter
	signInErr  error
	signOutErr error
}

func newFailingSource(signInErr, signOutErr error) *failingSource {
	f := &failingSource{Emitter: &session.Emitter{}, signInErr: signInErr, signOutErr: signOutErr}
	f.Emit(nil)
	return f
}

func (f *failingSource) Name() string { return "failing" }

func (f *failingSource) SignIn(ctx context.Context, creds session.Credentials) (*session.Identity, error) {
	return nil, f.signInErr
}

func (f *failingSource) SignOut(ctx context.Context) error {
	f.Emit(nil)
	return f.signOutErr
}

type fixture struct {
	svc       *AuthService
	store     *session.Store
	primary   *session.MemorySource
	federated *session.MemorySource
}

func newFixture(t *testing.T, limiter *ratelimit.Limiter) *fixture {
	t.Helper()
	primary := session.NewMemorySource(session.ProviderPrimary,
		session.Account{Email: "fan@example.com", Password: "pw", DisplayName: "Fan"})
	federated := session.NewMemorySource(session.ProviderFederated,
		session.Account{Email: "kiosk@example.com", Password: "otp"})

	store := session.NewStore(session.StoreConfig{Primary: primary, Federated: federated})
	store.Start()
	t.Cleanup(store.Close)

	svc := NewAuthService(AuthServiceConfig{
		Store:     store,
		Primary:   primary,
		Federated: federated,
		Limiter:   limiter,
	})
	return &fixture{svc: svc, store: store, primary: primary, federated: federated}
}

var meta = audit.RequestMeta{RequestID: "req-1", IPAddress: "10.0.0.9", UserAgent: "kiosk"}

func TestAuthService_SignInPrimary(t *testing.T) {
	f := newFixture(t, nil)

	s, err := f.svc.SignInPrimary(context.Background(), session.Credentials{Email: "fan@example.com", Password: "pw"}, meta)
	require.NoError(t, err)
	assert.Equal(t, session.RoleUser, s.Role)
	require.NotNil(t, s.PrimaryUser)
	assert.Equal(t, "Fan", s.DisplayName())
	assert.Equal(t, s, f.svc.Session())
}

func TestAuthService_SignInFailure(t *testing.T) {
	f := newFixture(t, nil)

	s, err := f.svc.SignInPrimary(context.Background(), session.Credentials{Email: "fan@example.com", Password: "wrong"}, meta)
	assert.True(t, shared.IsAuthError(err))
	assert.True(t, s.IsGuest())
}

func TestAuthService_UntypedProviderErrorBecomesAuth(t *testing.T) {
	primary := newFailingSource(errors.New("socket closed"), nil)
	store := session.NewStore(session.StoreConfig{Primary: primary})
	store.Start()
	defer store.Close()

	svc := NewAuthService(AuthServiceConfig{Store: store, Primary: primary})
	_, err := svc.SignInPrimary(context.Background(), session.Credentials{Email: "a@example.com"}, meta)
	assert.True(t, shared.IsAuthError(err))
	assert.ErrorContains(t, err, "socket closed")
}

func TestAuthService_ProviderUnavailable(t *testing.T) {
	store := session.NewStore(session.StoreConfig{})
	store.Start()
	defer store.Close()

	svc := NewAuthService(AuthServiceConfig{Store: store})
	_, err := svc.SignInPrimary(context.Background(), session.Credentials{Email: "a@example.com", Password: "pw"}, meta)
	assert.True(t, shared.IsProviderUnavailableError(err))
	_, err = svc.SignInFederated(context.Background(), session.Credentials{IDToken: "tok"}, meta)
	assert.True(t, shared.IsProviderUnavailableError(err))

	assert.Equal(t, map[string]bool{session.ProviderPrimary: false, session.ProviderFederated: false}, svc.Providers())

	s, err := svc.SignOut(context.Background(), meta)
	require.NoError(t, err)
	assert.True(t, s.IsGuest())
}

func TestAuthService_RateLimited(t *testing.T) {
	f := newFixture(t, ratelimit.New(ratelimit.Config{Rate: rate.Limit(0.001), Burst: 2}))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.SignInPrimary(ctx, session.Credentials{Email: "fan@example.com", Password: "wrong"}, meta)
		assert.True(t, shared.IsAuthError(err))
	}

	_, err := f.svc.SignInPrimary(ctx, session.Credentials{Email: "fan@example.com", Password: "pw"}, meta)
	require.True(t, shared.IsRateLimitError(err))
	assert.Greater(t, shared.GetErrorDetails(err)["retry_after_seconds"], 0)
	assert.True(t, f.store.GetSession().IsGuest(), "a refused attempt never reaches the provider")

	other := meta
	other.IPAddress = "10.0.0.10"
	_, err = f.svc.SignInPrimary(ctx, session.Credentials{Email: "fan@example.com", Password: "pw"}, other)
	assert.True(t, shared.IsRateLimitError(err), "the account key is exhausted from every address")
}

func TestAuthService_SignOutBothProviders(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.SignInPrimary(ctx, session.Credentials{Email: "fan@example.com", Password: "pw"}, meta)
	require.NoError(t, err)
	s, err := f.svc.SignInFederated(ctx, session.Credentials{Email: "kiosk@example.com", Password: "otp"}, meta)
	require.NoError(t, err)
	require.NotNil(t, s.FederatedUser)

	s, err = f.svc.SignOut(ctx, meta)
	require.NoError(t, err)
	assert.True(t, s.IsGuest())
	assert.Nil(t, f.primary.Current())
	assert.Nil(t, f.federated.Current())
}

func TestAuthService_SignOutContinuesAfterFailure(t *testing.T) {
	primary := newFailingSource(nil, errors.New("revocation endpoint down"))
	federated := session.NewMemorySource(session.ProviderFederated, session.Account{Email: "k@example.com", Password: "otp"})
	store := session.NewStore(session.StoreConfig{Primary: primary, Federated: federated})
	store.Start()
	defer store.Close()

	svc := NewAuthService(AuthServiceConfig{Store: store, Primary: primary, Federated: federated})
	_, err := svc.SignInFederated(context.Background(), session.Credentials{Email: "k@example.com", Password: "otp"}, meta)
	require.NoError(t, err)

	s, err := svc.SignOut(context.Background(), meta)
	assert.True(t, shared.IsAuthError(err))
	assert.ErrorContains(t, err, "revocation endpoint down")
	assert.True(t, s.IsGuest())
}

func TestAuthService_RecordsAuditEvents(t *testing.T) {
	auditSvc := audit.NewService(nil, nil, audit.Config{BufferSize: 1})
	require.NoError(t, auditSvc.Start())

	f := newFixture(t, nil)
	f.svc.audit = auditSvc

	// a full buffer never fails the sign-in itself
	for i := 0; i < 5; i++ {
		_, err := f.svc.SignInPrimary(context.Background(), session.Credentials{Email: "fan@example.com", Password: "pw"}, meta)
		require.NoError(t, err)
	}
	require.NoError(t, auditSvc.Stop(time.Second))
}

func TestRateLimitKeys(t *testing.T) {
	assert.Equal(t, []string{"ip:unknown"}, rateLimitKeys("primary", "", ""))
	assert.Equal(t, []string{"ip:1.2.3.4", "id:primary:fan@example.com"}, rateLimitKeys("primary", "1.2.3.4", " Fan@Example.com "))
}
