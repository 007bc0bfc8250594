package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/upb/ticketing-shell/middleware"
	"github.com/upb/ticketing-shell/models"
	"github.com/upb/ticketing-shell/services/assignment"
	"github.com/upb/ticketing-shell/session"
	"github.com/upb/ticketing-shell/utils"
	"go.uber.org/zap"
)

// AssignmentService defines the role assignment operations of the back office
type AssignmentService interface {
	Grant(ctx context.Context, req assignment.GrantRequest) (*models.RoleAssignment, session.Role, error)
	Revoke(ctx context.Context, email string) error
	List(ctx context.Context, limit, offset int) ([]*models.RoleAssignment, error)
}

// GrantResponse represents a stored assignment and the role it replaced
type GrantResponse struct {
	Assignment   *models.RoleAssignment `json:"assignment"`
	PreviousRole session.Role           `json:"previous_role,omitempty"`
}

// AssignmentHandler handles role assignment HTTP requests
type AssignmentHandler struct {
	service AssignmentService
	store   middleware.SessionReader
	logger  *zap.Logger
}

// NewAssignmentHandler creates a new AssignmentHandler
func NewAssignmentHandler(service AssignmentService, store middleware.SessionReader, logger *zap.Logger) *AssignmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentHandler{
		service: service,
		store:   store,
		logger:  logger,
	}
}

// HandleList handles GET /api/v1/admin/role-assignments
func (h *AssignmentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	assignments, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if assignments == nil {
		assignments = []*models.RoleAssignment{}
	}
	_ = utils.WriteOK(w, assignments)
}

// HandleGrant handles POST /api/v1/admin/role-assignments
func (h *AssignmentHandler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req assignment.GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug("failed to decode grant request",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if req.GrantedBy == "" {
		req.GrantedBy = h.store.GetSession().Email()
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	a, previous, err := h.service.Grant(ctx, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("role assignment granted",
		zap.String("request_id", requestID),
		zap.String("email", a.Email),
		zap.String("role", a.Role.String()),
		zap.String("granted_by", a.GrantedBy))

	resp := GrantResponse{Assignment: a, PreviousRole: previous}
	if previous != "" {
		_ = utils.WriteOK(w, resp)
		return
	}
	_ = utils.WriteCreated(w, resp)
}

// HandleRevoke handles DELETE /api/v1/admin/role-assignments/{email}
func (h *AssignmentHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if email == "" {
		_ = utils.WriteBadRequest(w, "Missing email", nil)
		return
	}

	if err := h.service.Revoke(r.Context(), email); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("role assignment revoked",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("email", email))
	utils.WriteNoContent(w)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
