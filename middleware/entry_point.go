package middleware

import (
	"net/http"

	"github.com/upb/ticketing-shell/navigation"
	"github.com/upb/ticketing-shell/redirect"
	"github.com/upb/ticketing-shell/services/audit"
	"go.uber.org/zap"
)

// EntryPointMiddleware runs the redirect coordinator on neutral entry
// points, sending a freshly authenticated session to its role home once
type EntryPointMiddleware struct {
	coordinator *redirect.Coordinator
	store       SessionReader
	audit       *audit.Service
	logger      *zap.Logger
}

// NewEntryPointMiddleware creates a new EntryPointMiddleware. auditor may be nil.
func NewEntryPointMiddleware(coordinator *redirect.Coordinator, store SessionReader, auditor *audit.Service, logger *zap.Logger) *EntryPointMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntryPointMiddleware{
		coordinator: coordinator,
		store:       store,
		audit:       auditor,
		logger:      logger,
	}
}

// Handler redirects to the role home when the coordinator fires and serves
// the page otherwise
func (m *EntryPointMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := m.store.GetSession()
		rec := &navigation.Recorder{}
		if !m.coordinator.Observe(r.URL.Path, current, rec) {
			next.ServeHTTP(w, r)
			return
		}

		cmd, _ := rec.Last()
		m.logger.Info("redirecting to role home",
			zap.String("request_id", GetRequestIDFromContext(r.Context())),
			zap.String("from", r.URL.Path),
			zap.String("to", cmd.Path),
			zap.String("role", current.Role.String()))
		if m.audit != nil {
			if err := m.audit.LogHomeRedirect(r.URL.Path, cmd.Path, current, RequestMeta(r)); err != nil {
				m.logger.Debug("home redirect not recorded", zap.Error(err))
			}
		}
		http.Redirect(w, r, cmd.Path, http.StatusFound)
	})
}
