package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/upb/ticketing-shell/config"
	"github.com/upb/ticketing-shell/guard"
	"github.com/upb/ticketing-shell/navigation"
	"github.com/upb/ticketing-shell/services/audit"
	"github.com/upb/ticketing-shell/session"
	"github.com/upb/ticketing-shell/utils"
	"go.uber.org/zap"
)

// settleSlack bounds how long a request waits past the settle delay
const settleSlack = 2 * time.Second

// SessionReader is the part of the session store the middleware reads
type SessionReader interface {
	GetSession() session.Session
}

// GuardMiddleware enforces the route table on page requests. While the
// identity providers are still restoring their sessions each request mounts
// a route guard and waits for it to settle; afterwards the policy is decided
// directly against the current session.
type GuardMiddleware struct {
	guard    *guard.Guard
	store    SessionReader
	audit    *audit.Service
	blocking bool
	restored func() bool
	logger   *zap.Logger
}

// GuardMiddlewareConfig wires a GuardMiddleware
type GuardMiddlewareConfig struct {
	Guard *guard.Guard
	Store SessionReader
	Audit *audit.Service // optional
	Mode  string         // config.GuardModeRedirect or config.GuardModeBlocking

	// Restored reports whether every identity provider has settled. Nil
	// means requests always mount a guard.
	Restored func() bool
	Logger   *zap.Logger
}

// NewGuardMiddleware creates a new GuardMiddleware
func NewGuardMiddleware(cfg GuardMiddlewareConfig) *GuardMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Restored == nil {
		cfg.Restored = func() bool { return false }
	}
	return &GuardMiddleware{
		guard:    cfg.Guard,
		store:    cfg.Store,
		audit:    cfg.Audit,
		blocking: cfg.Mode == config.GuardModeBlocking,
		restored: cfg.Restored,
		logger:   cfg.Logger,
	}
}

// Protect returns a middleware enforcing policy on every request
func (m *GuardMiddleware) Protect(policy guard.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)
			path := r.URL.RequestURI()

			d, err := m.decide(ctx, path, policy)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Warn("route guard did not settle",
					zap.String("request_id", requestID),
					zap.String("path", path),
					zap.Error(err))
				_ = utils.WriteServiceUnavailable(w, "Session is still being restored", nil)
				return
			}

			if d.State == guard.StateAllowed {
				next.ServeHTTP(w, r.WithContext(WithDecision(ctx, d)))
				return
			}

			m.logger.Info("page access denied",
				zap.String("request_id", requestID),
				zap.String("path", path),
				zap.String("state", d.State.String()),
				zap.String("role", d.ActualRole.String()))
			if m.audit != nil {
				if err := m.audit.LogAccessDenied(d, m.store.GetSession(), RequestMeta(r)); err != nil {
					m.logger.Debug("access denial not recorded", zap.Error(err))
				}
			}

			if m.blocking {
				writeDenied(w, d)
				return
			}
			http.Redirect(w, r, d.RedirectTo, http.StatusFound)
		})
	}
}

func (m *GuardMiddleware) decide(ctx context.Context, path string, policy guard.Policy) (guard.Decision, error) {
	if m.restored() {
		return m.guard.Decide(path, policy, m.store.GetSession()), nil
	}

	// The recorder captures the single navigation of a denied mount; the
	// decision already carries the same target.
	rec := &navigation.Recorder{}
	var nav navigation.Navigator
	if !m.blocking {
		nav = rec
	}
	mount := m.guard.Mount(path, policy, nav, nil)
	defer mount.Unmount()

	waitCtx, cancel := context.WithTimeout(ctx, m.guard.SettleDelay()+settleSlack)
	defer cancel()
	d, err := mount.Wait(waitCtx)
	if err != nil {
		return d, err
	}
	if cmd, ok := rec.Last(); ok {
		d.RedirectTo = cmd.Path
	}
	if d.State == guard.StateChecking {
		return d, errors.New("route guard still checking")
	}
	return d, nil
}

// writeDenied renders the inline explanatory view: a login prompt for
// unauthenticated visitors, access denied with required versus actual role
// otherwise
func writeDenied(w http.ResponseWriter, d guard.Decision) {
	details := map[string]interface{}{
		"path":          d.Path,
		"state":         d.State.String(),
		"actual_role":   d.ActualRole,
		"require_auth":  d.RequireAuth,
		"redirect_hint": d.RedirectTo,
	}
	if len(d.RequiredRoles) > 0 {
		details["required_roles"] = d.RequiredRoles
	}

	if d.State == guard.StateDeniedAuth {
		_ = utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse{
			Error:   "login_required",
			Message: d.Reason,
			Details: details,
		})
		return
	}
	_ = utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse{
		Error:   "access_denied",
		Message: d.Reason,
		Details: details,
	})
}
