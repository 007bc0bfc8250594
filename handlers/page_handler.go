package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/ticketing-shell/guard"
	"github.com/upb/ticketing-shell/middleware"
	"github.com/upb/ticketing-shell/utils"
)

// PageResponse is the envelope served for a page of the shell. The page
// content itself belongs to the front end.
type PageResponse struct {
	Route    string            `json:"route"`
	Path     string            `json:"path"`
	Pattern  string            `json:"pattern"`
	Params   map[string]string `json:"params,omitempty"`
	Decision *guard.Decision   `json:"decision,omitempty"`
	Session  SessionResponse   `json:"session"`
}

// PageHandler renders page envelopes for the routes of the table
type PageHandler struct {
	sessions *SessionHandler
}

// NewPageHandler creates a new PageHandler
func NewPageHandler(sessions *SessionHandler) *PageHandler {
	return &PageHandler{sessions: sessions}
}

// HandlePage returns the handler serving route
func (h *PageHandler) HandlePage(route guard.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := PageResponse{
			Route:   route.Name,
			Path:    r.URL.Path,
			Pattern: route.Path,
			Session: h.sessions.snapshot(),
		}
		if d, ok := middleware.GetDecisionFromContext(r.Context()); ok {
			resp.Decision = &d
		}
		if rctx := chi.RouteContext(r.Context()); rctx != nil && len(rctx.URLParams.Keys) > 0 {
			resp.Params = make(map[string]string, len(rctx.URLParams.Keys))
			for i, key := range rctx.URLParams.Keys {
				resp.Params[key] = rctx.URLParams.Values[i]
			}
		}
		_ = utils.WriteOK(w, resp)
	}
}
