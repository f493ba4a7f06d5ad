package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/blog-service/internal/api/http/handlers"
	"github.com/spec-kit/blog-service/internal/auth"
	"github.com/spec-kit/blog-service/internal/domain"
	"github.com/spec-kit/blog-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Posts          *handlers.PostsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Get("/verify", cfg.Auth.VerifyLink)
	authGroup.Post("/verify", cfg.Auth.Verify)
	authGroup.Post("/verify/resend", cfg.Auth.ResendVerification)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/logout", cfg.Auth.Logout)

	authenticated := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAuthenticated()}

	users := app.Group("/users", authenticated...)
	users.Get("/me", cfg.Users.Me)
	users.Patch("/me", cfg.Users.UpdateMe)
	users.Post("/me/password", cfg.Users.ChangePassword)
	users.Delete("/me", cfg.Users.DeleteMe)
	users.Get("/me/posts", cfg.Posts.ListMine)
	users.Delete("/:id", cfg.Users.Delete)

	admin := app.Group("/admin", append(authenticated, auth.RequireRole(domain.RoleAdmin))...)
	admin.Get("/users", cfg.Admin.ListUsers)
	admin.Patch("/users/:id/role", cfg.Admin.ChangeRole)

	posts := app.Group("/posts")
	posts.Get("", cfg.Posts.List)
	posts.Get("/:id", cfg.Posts.Get)
	posts.Post("", withAuth(authenticated, cfg.Posts.Create)...)
	posts.Patch("/:id", withAuth(authenticated, cfg.Posts.Update)...)
	posts.Delete("/:id", withAuth(authenticated, cfg.Posts.Delete)...)
}

// withAuth prefixes handler with the authentication chain.
func withAuth(chain []fiber.Handler, handler fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(chain)+1)
	out = append(out, chain...)
	return append(out, handler)
}
