package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-auth-service/internal/config"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/middleware"
	"go-auth-service/internal/model"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	User   *handler.UserHandler
	Audit  *handler.AuditHandler
	Health *handler.HealthHandler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, handlers Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)
	// Validate has already rejected malformed entries.
	trustedProxies, _ := cfg.TrustedProxyPrefixes()
	clientIP := middleware.NewClientIPResolver(trustedProxies)

	r.Use(middleware.Recovery)
	r.Use(clientIP.Handler)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", handlers.Health.Live)
	r.Get("/ready", handlers.Health.Ready)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", handlers.Auth.Register)
			auth.Post("/login", handlers.Auth.Login)
			auth.Post("/refresh", handlers.Auth.Refresh)
			auth.Post("/logout", handlers.Auth.Logout)

			auth.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)
				protected.Post("/logout-all", handlers.Auth.LogoutAll)
				protected.Get("/me", handlers.Auth.Me)
				protected.Put("/password", handlers.Auth.ChangePassword)
			})
		})

		api.Group(func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth, authMiddleware.RequireRoles(model.RoleAdmin))
			admin.Get("/users/{id}", handlers.User.Get)
			admin.Put("/users/{id}/status", handlers.User.SetStatus)
			admin.Get("/audit", handlers.Audit.List)
		})
	})

	return r
}
