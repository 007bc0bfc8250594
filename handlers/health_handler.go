package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/ticketing-shell/services/audit"
	"github.com/upb/ticketing-shell/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]string      `json:"checks,omitempty"`
	Audit     *audit.Stats           `json:"audit,omitempty"`
	KeyCache  map[string]interface{} `json:"key_cache,omitempty"`
}

// DatabaseChecker is satisfied by postgres.DB
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// KeyCacheReporter is satisfied by cognito.Validator
type KeyCacheReporter interface {
	CacheStats() map[string]interface{}
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db       DatabaseChecker
	audit    *audit.Service
	keys     KeyCacheReporter
	restored func() bool
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and auditor may be nil;
// restored reports whether the identity providers finished restoring their
// sessions, nil meaning always.
func NewHealthHandler(db DatabaseChecker, auditor *audit.Service, restored func() bool, logger *zap.Logger) *HealthHandler {
	if restored == nil {
		restored = func() bool { return true }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		db:       db,
		audit:    auditor,
		restored: restored,
		logger:   logger,
	}
}

// WithKeyCache adds the federated signing key cache to the readiness report
func (h *HealthHandler) WithKeyCache(keys KeyCacheReporter) *HealthHandler {
	h.keys = keys
	return h
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Ready once the database answers and every identity provider has settled
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.db == nil {
		checks["database"] = "disabled"
	} else if err := h.db.HealthCheck(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	if h.restored() {
		checks["session"] = "restored"
	} else {
		checks["session"] = "restoring"
		allHealthy = false
	}

	response := HealthResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if h.audit != nil {
		stats := h.audit.Stats()
		response.Audit = &stats
		checks["audit"] = "running"
		if !stats.Started {
			checks["audit"] = "stopped"
		}
	}

	if h.keys != nil {
		response.KeyCache = h.keys.CacheStats()
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}
	response.Status = status

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
