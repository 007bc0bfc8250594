package handlers

import (
	"net/http"

	"github.com/upb/ticketing-shell/guard"
	"github.com/upb/ticketing-shell/utils"
)

// RoutesResponse is the effective route policy table
type RoutesResponse struct {
	*guard.Table
	EntryPoints       []string `json:"entry_points"`
	Misconfigurations []string `json:"misconfigurations,omitempty"`
}

// RoutesHandler exposes the route policy table for diagnostics
type RoutesHandler struct {
	table *guard.Table
}

// NewRoutesHandler creates a new RoutesHandler
func NewRoutesHandler(table *guard.Table) *RoutesHandler {
	return &RoutesHandler{table: table}
}

// HandleListRoutes handles GET /api/v1/routes
func (h *RoutesHandler) HandleListRoutes(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, RoutesResponse{
		Table:             h.table,
		EntryPoints:       h.table.EntryPoints(),
		Misconfigurations: h.table.Misconfigurations(),
	})
}
