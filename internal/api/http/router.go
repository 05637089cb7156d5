package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/karteji/internal/api/http/handlers"
	"github.com/spec-kit/karteji/internal/auth"
	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Members        *handlers.MembersHandler
	Verification   *handlers.VerificationHandler
	Reports        *handlers.ReportsHandler
	Settings       *handlers.SettingsHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
	MemberSource   auth.MemberSource
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
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/logout", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Auth.Logout)

	app.Get("/me", cfg.AuthMiddleware.Handle, cfg.Members.Me)
	app.Patch("/me", cfg.AuthMiddleware.Handle, cfg.Members.UpdateMe)

	activeOnly := auth.RequireMemberStatus(cfg.MemberSource, domain.MemberStatusActive)

	members := app.Group("/members", cfg.AuthMiddleware.Handle, activeOnly)
	members.Get("/", cfg.Members.List)
	members.Get("/structure", cfg.Members.Structure)
	members.Get("/stats", cfg.Members.Stats)
	members.Get("/:id", cfg.Members.Get)
	members.Patch("/:id", cfg.Members.Edit)
	members.Delete("/:id", cfg.Members.Delete)

	verification := app.Group("/verification", cfg.AuthMiddleware.Handle, activeOnly)
	verification.Get("/pending", cfg.Verification.ListPending)
	verification.Get("/pending/stream", cfg.Verification.StreamPending)
	verification.Post("/:id/approve", cfg.Verification.Approve)
	verification.Post("/:id/reject", cfg.Verification.Reject)

	reports := app.Group("/reports", cfg.AuthMiddleware.Handle, activeOnly)
	reports.Get("/", cfg.Reports.List)
	reports.Post("/", cfg.Reports.Create)
	reports.Delete("/:id", cfg.Reports.Delete)

	settings := app.Group("/settings", cfg.AuthMiddleware.Handle)
	settings.Get("/organization", cfg.Settings.Get)
	settings.Put("/organization", cfg.Settings.Save)

	app.Get("/notifications", cfg.AuthMiddleware.Handle, activeOnly, cfg.Notifications.List)
}
