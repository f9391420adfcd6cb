package routes

import (
	"net/http"

	"github.com/BradenHooton/tasktrack/internal/auth"
	"github.com/BradenHooton/tasktrack/internal/handlers"
	"github.com/BradenHooton/tasktrack/internal/middleware"
	"github.com/BradenHooton/tasktrack/internal/models"
	"github.com/go-chi/chi/v5"
)

// Ownership rules for the protected resource kinds
var (
	UserRule = auth.OwnershipRule{Kind: models.ResourceUser, Param: "id", OwnerField: "id", AllowSelf: true}
	TaskRule = auth.OwnershipRule{Kind: models.ResourceTask, Param: "taskID", OwnerField: "user_id"}
	TagRule  = auth.OwnershipRule{Kind: models.ResourceTag, Param: "tagID", OwnerField: "user_id"}
)

// Dependencies carries everything the router needs
type Dependencies struct {
	AuthHandler *handlers.AuthHandler
	UserHandler *handlers.UserHandler
	Guard       *auth.SessionGuard
	Authorizer  *auth.OwnershipAuthorizer
	RateLimit   middleware.RateLimitConfig
	Health      http.HandlerFunc

	// Tasks and Tags are served by the task tracker proper. When set they are
	// mounted under /tasks/{taskID} and /tags/{tagID} behind the ownership check.
	Tasks http.Handler
	Tags  http.Handler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	authLimit := middleware.RateLimitByIP(deps.RateLimit)

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Public)
		if deps.Health != nil {
			r.Get("/health", deps.Health)
		}
		r.With(authLimit).Post("/auth/register", deps.AuthHandler.Register)
		r.With(authLimit).Post("/auth/login", deps.AuthHandler.Login)
	})

	// Refresh authenticates with the refresh token in the body
	router.With(authLimit, deps.Guard.RequireRefresh).Post("/auth/refresh", deps.AuthHandler.RefreshToken)

	// Protected routes - access token required
	router.Group(func(r chi.Router) {
		r.Use(deps.Guard.RequireAccess)

		r.Get("/auth/me", deps.AuthHandler.Me)
		deps.UserHandler.RegisterRoutes(r, deps.Authorizer.Require(UserRule))

		if deps.Tasks != nil {
			r.Route("/tasks/{taskID}", func(r chi.Router) {
				r.Use(deps.Authorizer.Require(TaskRule))
				r.Mount("/", deps.Tasks)
			})
		}
		if deps.Tags != nil {
			r.Route("/tags/{tagID}", func(r chi.Router) {
				r.Use(deps.Authorizer.Require(TagRule))
				r.Mount("/", deps.Tags)
			})
		}
	})
}
