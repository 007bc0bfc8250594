package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/ticketing-shell/internal/shared"
	"github.com/upb/ticketing-shell/models"
	"github.com/upb/ticketing-shell/services/assignment"
	"github.com/upb/ticketing-shell/session"
	"go.uber.org/zap"
)

type MockAssignmentService struct {
	mock.Mock
}

func (m *MockAssignmentService) Grant(ctx context.Context, req assignment.GrantRequest) (*models.RoleAssignment, session.Role, error) {
	args := m.Called(ctx, req)
	a, _ := args.Get(0).(*models.RoleAssignment)
	return a, args.Get(1).(session.Role), args.Error(2)
}

func (m *MockAssignmentService) Revoke(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockAssignmentService) List(ctx context.Context, limit, offset int) ([]*models.RoleAssignment, error) {
	args := m.Called(ctx, limit, offset)
	out, _ := args.Get(0).([]*models.RoleAssignment)
	return out, args.Error(1)
}

type fixedSession session.Session

func (f fixedSession) GetSession() session.Session { return session.Session(f) }

func newAssignmentRouter(svc AssignmentService) http.Handler {
	h := NewAssignmentHandler(svc, fixedSession(organizerSession()), zap.NewNop())
	r := chi.NewRouter()
	r.Get("/role-assignments", h.HandleList)
	r.Post("/role-assignments", h.HandleGrant)
	r.Delete("/role-assignments/{email}", h.HandleRevoke)
	return r
}

func TestAssignmentHandler_Grant(t *testing.T) {
	t.Run("creates assignment attributed to the caller", func(t *testing.T) {
		svc := new(MockAssignmentService)
		want := assignment.GrantRequest{Email: "ana@example.com", Role: session.RoleOrganizer, GrantedBy: "org@example.com"}
		svc.On("Grant", mock.Anything, want).
			Return(models.NewRoleAssignment(want.Email, want.Role, want.GrantedBy), session.Role(""), nil)

		w := httptest.NewRecorder()
		newAssignmentRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/role-assignments",
			bytes.NewBufferString(`{"email":"ana@example.com","role":"organizer"}`)))

		assert.Equal(t, http.StatusCreated, w.Code)
		data := decodeData(t, w)
		a := data["assignment"].(map[string]interface{})
		assert.Equal(t, "ana@example.com", a["email"])
		assert.Equal(t, "organizer", a["role"])
		assert.Nil(t, data["previous_role"])
		svc.AssertExpectations(t)
	})

	t.Run("replacing reports previous role", func(t *testing.T) {
		svc := new(MockAssignmentService)
		svc.On("Grant", mock.Anything, mock.AnythingOfType("assignment.GrantRequest")).
			Return(models.NewRoleAssignment("ana@example.com", session.RoleAdmin, "root"), session.RoleOrganizer, nil)

		w := httptest.NewRecorder()
		newAssignmentRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/role-assignments",
			bytes.NewBufferString(`{"email":"ana@example.com","role":"admin","granted_by":"root"}`)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "organizer", decodeData(t, w)["previous_role"])
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"malformed json", `{"email":`},
			{"bad email", `{"email":"nope","role":"user"}`},
			{"guest is not assignable", `{"email":"ana@example.com","role":"guest"}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := new(MockAssignmentService)
				w := httptest.NewRecorder()
				newAssignmentRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/role-assignments",
					bytes.NewBufferString(tt.body)))

				assert.Equal(t, http.StatusBadRequest, w.Code)
				svc.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("storage failure", func(t *testing.T) {
		svc := new(MockAssignmentService)
		svc.On("Grant", mock.Anything, mock.Anything).
			Return(nil, session.Role(""), shared.WrapInternal("failed to grant role", errors.New("conn reset")))

		w := httptest.NewRecorder()
		newAssignmentRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/role-assignments",
			bytes.NewBufferString(`{"email":"ana@example.com","role":"user"}`)))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestAssignmentHandler_List(t *testing.T) {
	svc := new(MockAssignmentService)
	svc.On("List", mock.Anything, 10, 20).Return(nil, nil)

	w := httptest.NewRecorder()
	newAssignmentRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/role-assignments?limit=10&offset=20", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
	svc.AssertExpectations(t)
}

func TestAssignmentHandler_Revoke(t *testing.T) {
	t.Run("deletes", func(t *testing.T) {
		svc := new(MockAssignmentService)
		svc.On("Revoke", mock.Anything, "ana@example.com").Return(nil)

		w := httptest.NewRecorder()
		newAssignmentRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/role-assignments/ana@example.com", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("unknown email", func(t *testing.T) {
		svc := new(MockAssignmentService)
		svc.On("Revoke", mock.Anything, "ghost@example.com").
			Return(shared.NewDomainError(shared.ErrorTypeNotFound, "role assignment not found", nil))

		w := httptest.NewRecorder()
		newAssignmentRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/role-assignments/ghost@example.com", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAuthEventHandler(t *testing.T) {
	t.Run("lists events", func(t *testing.T) {
		events := &stubEvents{events: []*models.AuthEvent{
			models.NewAuthEvent(models.AuthActionSignIn, session.RoleUser),
		}}
		w := httptest.NewRecorder()
		NewAuthEventHandler(events, nil).HandleRecent(w, httptest.NewRequest(http.MethodGet, "/auth-events?limit=5", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 5, events.limit)
		var response struct {
			Data []map[string]interface{} `json:"data"`
		}
		require.NoError(t, jsonDecode(w, &response))
		require.Len(t, response.Data, 1)
		assert.Equal(t, "sign_in", response.Data[0]["action"])
	})

	t.Run("no persistence yields empty list", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewAuthEventHandler(&stubEvents{}, nil).HandleRecent(w, httptest.NewRequest(http.MethodGet, "/auth-events", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":[]}`, w.Body.String())
	})

	t.Run("storage failure", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewAuthEventHandler(&stubEvents{err: errors.New("down")}, nil).HandleRecent(w, httptest.NewRequest(http.MethodGet, "/auth-events", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

type stubEvents struct {
	events []*models.AuthEvent
	err    error
	limit  int
}

func (s *stubEvents) Recent(ctx context.Context, limit int) ([]*models.AuthEvent, error) {
	s.limit = limit
	return s.events, s.err
}
