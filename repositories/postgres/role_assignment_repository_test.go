package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/ticketing-shell/internal/shared"
	"github.com/upb/ticketing-shell/models"
	"github.com/upb/ticketing-shell/session"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return WrapDB(sqlDB, zap.NewNop()), mock
}

var assignmentColumns = []string{"id", "email", "role", "granted_by", "created_at", "updated_at"}

func TestRoleAssignmentRepository_GetByEmail(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, zap.NewNop())

		id := uuid.New()
		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta("FROM role_assignments WHERE email = $1")).
			WithArgs("org@example.com").
			WillReturnRows(sqlmock.NewRows(assignmentColumns).AddRow(id.String(), "org@example.com", "organizer", "backoffice", now, now))

		a, err := repo.GetByEmail(context.Background(), " ORG@example.com")
		require.NoError(t, err)
		assert.Equal(t, id, a.ID)
		assert.Equal(t, session.RoleOrganizer, a.Role)
		assert.Equal(t, "backoffice", a.GrantedBy)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, zap.NewNop())

		mock.ExpectQuery("FROM role_assignments").WithArgs("nobody@example.com").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
		assert.True(t, shared.IsNotFoundError(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, zap.NewNop())

		mock.ExpectQuery("FROM role_assignments").WillReturnError(errors.New("connection reset"))

		_, err := repo.GetByEmail(context.Background(), "a@example.com")
		require.Error(t, err)
		assert.False(t, shared.IsNotFoundError(err))
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestRoleAssignmentRepository_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoleAssignmentRepository(db, zap.NewNop())

	a := models.NewRoleAssignment("Admin@Example.com", session.RoleAdmin, "ops")
	storedID := uuid.New()
	created := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (email) DO UPDATE")).
		WithArgs(a.ID, "admin@example.com", sqlmock.AnyArg(), "ops", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(storedID.String(), created))

	require.NoError(t, repo.Upsert(context.Background(), a))
	assert.Equal(t, storedID, a.ID)
	assert.Equal(t, created, a.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleAssignmentRepository_Delete(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM role_assignments WHERE email = $1")).
			WithArgs("a@example.com").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(context.Background(), "A@example.com"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, zap.NewNop())

		mock.ExpectExec("DELETE FROM role_assignments").WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Delete(context.Background(), "a@example.com")
		assert.True(t, shared.IsNotFoundError(err))
	})
}

func TestRoleAssignmentRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoleAssignmentRepository(db, zap.NewNop())

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY email LIMIT $1 OFFSET $2")).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(assignmentColumns).
			AddRow(uuid.NewString(), "a@example.com", "admin", "", now, now).
			AddRow(uuid.NewString(), "b@example.com", "user", "ops", now, now))

	list, err := repo.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, session.RoleAdmin, list[0].Role)
	assert.Equal(t, "b@example.com", list[1].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}
