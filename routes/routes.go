package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/ticketing-shell/app"
	"github.com/upb/ticketing-shell/guard"
	"github.com/upb/ticketing-shell/handlers"
	"github.com/upb/ticketing-shell/middleware"
	"github.com/upb/ticketing-shell/session"
	"github.com/upb/ticketing-shell/utils"
)

var adminOnly = guard.Policy{
	RequireAuth:  true,
	AllowedRoles: []session.Role{session.RoleAdmin},
}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	origins := deps.Config.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Location", "Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	var db handlers.DatabaseChecker
	if deps.DB != nil {
		db = deps.DB
	}
	health := handlers.NewHealthHandler(db, deps.Audit, deps.Restored, deps.Logger)
	if deps.KeyCache != nil {
		health.WithKeyCache(deps.KeyCache)
	}
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// Sign-in and sign-out flows
	r.Route("/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.Handler)
		r.Post("/login", deps.AuthHandler.HandleLogin)
		r.Get("/federated/login", deps.AuthHandler.HandleFederatedLogin)
		r.Get("/callback", deps.AuthHandler.HandleCallback)
		r.Post("/token", deps.AuthHandler.HandleToken)
		r.Get("/logout", deps.AuthHandler.HandleLogout)
		r.Post("/logout", deps.AuthHandler.HandleLogout)
	})
	// Cognito Hosted UI default callback path (also used by /auth/callback)
	r.With(deps.RateLimiter.Handler).Get("/oauth2/idpresponse", deps.AuthHandler.HandleCallback)

	sessions := handlers.NewSessionHandler(deps.AuthService, deps.Table)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/session", sessions.HandleGetSession)
		r.Get("/routes", handlers.NewRoutesHandler(deps.Table).HandleListRoutes)

		// Back office (require admin role)
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.APIGuard.Protect(adminOnly))

			events := handlers.NewAuthEventHandler(deps.Audit, deps.Logger)
			r.Get("/auth-events", events.HandleRecent)

			if deps.Assignments != nil {
				assignments := handlers.NewAssignmentHandler(deps.Assignments, deps.Store, deps.Logger)
				r.Get("/role-assignments", assignments.HandleList)
				r.Post("/role-assignments", assignments.HandleGrant)
				r.Delete("/role-assignments/{email}", assignments.HandleRevoke)
			}
		})
	})

	// Shell pages from the route table
	pages := handlers.NewPageHandler(sessions)
	for _, route := range deps.Table.Routes {
		var chain []func(http.Handler) http.Handler
		if route.EntryPoint {
			chain = append(chain, deps.EntryPoints.Handler)
		}
		if route.Guarded() {
			chain = append(chain, deps.GuardMiddleware.Protect(route.Policy))
		}
		r.With(chain...).Get(route.Path, pages.HandlePage(route))
	}

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
