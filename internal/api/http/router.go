package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portal-session/internal/api/http/handlers"
	"github.com/spec-kit/portal-session/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Session        *handlers.SessionHandler
	Assistant      *handlers.AssistantHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Snapshot)

	sessionGroup := app.Group("/session")
	sessionGroup.Post("/login", cfg.Session.Login)
	sessionGroup.Post("/logout", cfg.Session.Logout)
	sessionGroup.Get("", cfg.AuthMiddleware.Optional, cfg.Session.Status)

	protected := app.Group("/assistant", cfg.AuthMiddleware.Handle, auth.RequireRole())
	protected.Post("/generate", cfg.Assistant.Generate)
}
