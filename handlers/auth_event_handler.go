package handlers

import (
	"context"
	"net/http"

	"github.com/upb/ticketing-shell/models"
	"github.com/upb/ticketing-shell/utils"
	"go.uber.org/zap"
)

// EventLister returns the newest persisted auth events
type EventLister interface {
	Recent(ctx context.Context, limit int) ([]*models.AuthEvent, error)
}

// AuthEventHandler serves the auth event trail to administrators
type AuthEventHandler struct {
	events EventLister
	logger *zap.Logger
}

// NewAuthEventHandler creates a new AuthEventHandler
func NewAuthEventHandler(events EventLister, logger *zap.Logger) *AuthEventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthEventHandler{events: events, logger: logger}
}

// HandleRecent handles GET /api/v1/admin/auth-events
func (h *AuthEventHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.Recent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		h.logger.Error("failed to list auth events", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to list auth events")
		return
	}
	if events == nil {
		events = []*models.AuthEvent{}
	}
	_ = utils.WriteOK(w, events)
}
