package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/usermgmt/internal/auth"
	"github.com/BradenHooton/usermgmt/internal/handlers"
	"github.com/BradenHooton/usermgmt/internal/middleware"
	"github.com/BradenHooton/usermgmt/internal/models"
	pkghttp "github.com/BradenHooton/usermgmt/pkg/http"
)

// Dependencies are the collaborators the router wires together.
type Dependencies struct {
	UserHandler   *handlers.UserHandler
	AuthHandler   *handlers.AuthHandler
	HealthHandler *handlers.HealthHandler
	Tokens        auth.AccessTokenValidator
	IPResolver    *pkghttp.ClientIPResolver
	Logger        *slog.Logger

	Env                  string
	AllowedOrigins       []string
	LoginRateLimitPerMin int
	// AccountRateLimitPerMin throttles authenticated routes; 0 disables it.
	AccountRateLimitPerMin int
}

// NewRouter builds the application's HTTP handler.
func NewRouter(deps Dependencies) chi.Router {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(middleware.SecureLogger(deps.Logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: deps.Env}))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(deps.AllowedOrigins)))

	router.Get("/health", deps.HealthHandler.Health)

	router.Route("/api/users", func(r chi.Router) {
		RegisterRoutes(r, deps)
	})

	return router
}

// RegisterRoutes registers the /api/users routes on router.
func RegisterRoutes(router chi.Router, deps Dependencies) {
	loginLimit := middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestsPerMinute: deps.LoginRateLimitPerMin,
		IPResolver:        deps.IPResolver,
	})

	// Public routes - no authentication required
	router.With(loginLimit).Post("/login", deps.AuthHandler.Login)
	router.Post("/register", deps.AuthHandler.Register)
	router.Get("/verify-email", deps.AuthHandler.VerifyEmail)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(deps.Tokens))
		if deps.AccountRateLimitPerMin > 0 {
			r.Use(middleware.RateLimitByAccount(middleware.RateLimitConfig{
				RequestsPerMinute: deps.AccountRateLimitPerMin,
				IPResolver:        deps.IPResolver,
			}))
		}

		// Owner or staff; checked in the handler
		r.Get("/me", deps.UserHandler.Me)
		r.Get("/{id}", deps.UserHandler.GetUser)
		r.Put("/{id}", deps.UserHandler.UpdateUser)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleManager, models.RoleAdmin))
			r.Get("/", deps.UserHandler.ListUsers)
			r.Post("/{id}/unlock", deps.UserHandler.UnlockUser)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Delete("/{id}", deps.UserHandler.DeleteUser)
			r.Put("/{id}/role", deps.UserHandler.ChangeRole)
		})
	})
}
