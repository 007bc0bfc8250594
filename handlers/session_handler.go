package handlers

import (
	"net/http"

	"github.com/upb/ticketing-shell/session"
	"github.com/upb/ticketing-shell/utils"
)

// SessionService is the part of the auth service the session endpoint reads
type SessionService interface {
	Session() session.Session
	Providers() map[string]bool
}

// HomeResolver maps a role to its landing page; satisfied by guard.Table
type HomeResolver interface {
	Home(role session.Role) string
}

// SessionResponse is the useSession view of the shell
type SessionResponse struct {
	Session       session.Session `json:"session"`
	Authenticated bool            `json:"authenticated"`
	DisplayName   string          `json:"display_name,omitempty"`
	Email         string          `json:"email,omitempty"`
	Home          string          `json:"home,omitempty"`
	Providers     map[string]bool `json:"providers"`
}

// SessionHandler serves the current session snapshot
type SessionHandler struct {
	auth  SessionService
	homes HomeResolver
}

// NewSessionHandler creates a new SessionHandler. homes is usually the route
// table and may be nil.
func NewSessionHandler(auth SessionService, homes HomeResolver) *SessionHandler {
	return &SessionHandler{auth: auth, homes: homes}
}

// HandleGetSession handles GET /api/v1/session
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.snapshot())
}

func (h *SessionHandler) snapshot() SessionResponse {
	s := h.auth.Session()
	resp := SessionResponse{
		Session:       s,
		Authenticated: s.IsAuthenticated(),
		DisplayName:   s.DisplayName(),
		Email:         s.Email(),
		Providers:     h.auth.Providers(),
	}
	if h.homes != nil && s.IsAuthenticated() {
		resp.Home = h.homes.Home(s.Role)
	}
	return resp
}
