package assignment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/ticketing-shell/internal/shared"
	"github.com/upb/ticketing-shell/models"
	"github.com/upb/ticketing-shell/repositories"
	"github.com/upb/ticketing-shell/session"
	"go.uber.org/zap"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetByEmail(ctx context.Context, email string) (*models.RoleAssignment, error) {
	args := m.Called(ctx, email)
	a, _ := args.Get(0).(*models.RoleAssignment)
	return a, args.Error(1)
}

func (m *mockRepo) Upsert(ctx context.Context, a *models.RoleAssignment) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockRepo) Delete(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*models.RoleAssignment, error) {
	args := m.Called(ctx, limit, offset)
	list, _ := args.Get(0).([]*models.RoleAssignment)
	return list, args.Error(1)
}

// inlineTx runs the callback directly and counts calls
type inlineTx struct {
	calls int
}

func (t *inlineTx) Begin(ctx context.Context) (repositories.Transaction, error) {
	return nil, errors.New("not supported")
}

func (t *inlineTx) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	t.calls++
	return fn(ctx, nil)
}

var errNotFound = shared.NewDomainError(shared.ErrorTypeNotFound, "role assignment not found", nil)

func TestService_LookupCaches(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil, Config{}, zap.NewNop())

	repo.On("GetByEmail", mock.Anything, "org@example.com").
		Return(models.NewRoleAssignment("org@example.com", session.RoleOrganizer, ""), nil).Once()

	for i := 0; i < 3; i++ {
		role, err := svc.Lookup(context.Background(), " Org@Example.com")
		require.NoError(t, err)
		assert.Equal(t, session.RoleOrganizer, role)
	}
	repo.AssertNumberOfCalls(t, "GetByEmail", 1)
	assert.Equal(t, 1, svc.CachedEntries())
}

func TestService_LookupCachesAbsence(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil, Config{}, nil)
	repo.On("GetByEmail", mock.Anything, "fan@example.com").Return(nil, errNotFound).Once()

	for i := 0; i < 2; i++ {
		role, err := svc.Lookup(context.Background(), "fan@example.com")
		require.NoError(t, err)
		assert.Empty(t, role)
	}
	repo.AssertNumberOfCalls(t, "GetByEmail", 1)
}

func TestService_LookupFailureIsNotCached(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil, Config{}, nil)
	repo.On("GetByEmail", mock.Anything, "a@example.com").Return(nil, errors.New("connection refused")).Twice()

	_, err := svc.Lookup(context.Background(), "a@example.com")
	assert.Error(t, err)
	_, err = svc.Lookup(context.Background(), "a@example.com")
	assert.Error(t, err)
	assert.Zero(t, svc.CachedEntries())
}

func TestService_LookupEmptyEmail(t *testing.T) {
	svc := NewService(&mockRepo{}, nil, Config{}, nil)
	role, err := svc.Lookup(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, role)
}

func TestService_Grant(t *testing.T) {
	repo := &mockRepo{}
	tx := &inlineTx{}
	svc := NewService(repo, tx, Config{}, nil)

	repo.On("GetByEmail", mock.Anything, "fan@example.com").
		Return(models.NewRoleAssignment("fan@example.com", session.RoleUser, ""), nil).Once()
	repo.On("Upsert", mock.Anything, mock.MatchedBy(func(a *models.RoleAssignment) bool {
		return a.Email == "fan@example.com" && a.Role == session.RoleAdmin && a.GrantedBy == "ops"
	})).Return(nil).Once()

	a, previous, err := svc.Grant(context.Background(), GrantRequest{Email: "Fan@example.com", Role: session.RoleAdmin, GrantedBy: "ops"})
	require.NoError(t, err)
	assert.Equal(t, session.RoleAdmin, a.Role)
	assert.Equal(t, session.RoleUser, previous)
	assert.Equal(t, 1, tx.calls)

	// served from the refreshed cache
	role, err := svc.Lookup(context.Background(), "fan@example.com")
	require.NoError(t, err)
	assert.Equal(t, session.RoleAdmin, role)
	repo.AssertExpectations(t)
}

func TestService_GrantFailure(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil, Config{}, nil)

	repo.On("GetByEmail", mock.Anything, "new@example.com").Return(nil, errNotFound)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("read-only transaction"))

	_, _, err := svc.Grant(context.Background(), GrantRequest{Email: "new@example.com", Role: session.RoleOrganizer})
	assert.True(t, shared.IsInternalError(err))
	assert.Zero(t, svc.CachedEntries())
}

func TestService_Revoke(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil, Config{}, nil)

	repo.On("GetByEmail", mock.Anything, "org@example.com").
		Return(models.NewRoleAssignment("org@example.com", session.RoleOrganizer, ""), nil).Once()
	repo.On("Delete", mock.Anything, "org@example.com").Return(nil).Once()
	repo.On("Delete", mock.Anything, "ghost@example.com").Return(errNotFound).Once()

	_, err := svc.Lookup(context.Background(), "org@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), "ORG@example.com"))
	role, err := svc.Lookup(context.Background(), "org@example.com")
	require.NoError(t, err)
	assert.Empty(t, role)

	assert.True(t, shared.IsNotFoundError(svc.Revoke(context.Background(), "ghost@example.com")))
	repo.AssertExpectations(t)
}

func TestService_ListClampsPaging(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil, Config{}, nil)
	repo.On("List", mock.Anything, 100, 0).Return([]*models.RoleAssignment{}, nil).Once()

	_, err := svc.List(context.Background(), 0, -5)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestService_Invalidate(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil, Config{}, nil)
	repo.On("GetByEmail", mock.Anything, "a@example.com").Return(nil, errNotFound).Twice()

	_, _ = svc.Lookup(context.Background(), "a@example.com")
	svc.Invalidate("A@example.com")
	_, _ = svc.Lookup(context.Background(), "a@example.com")
	repo.AssertNumberOfCalls(t, "GetByEmail", 2)
}
