package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/certify-go-api/internal/config"
	"github.com/noah-isme/certify-go-api/internal/handler"
	"github.com/noah-isme/certify-go-api/internal/middleware"
	"github.com/noah-isme/certify-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	CourseHandler      *handler.CourseHandler
	WorkflowHandler    *handler.WorkflowHandler
	AdminReviewHandler *handler.AdminReviewHandler
	WebhookHandler     *handler.WebhookHandler
	JWTMiddleware      fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.CourseHandler != nil {
		courses := api.Group("/courses", jwtMiddleware)
		deps.CourseHandler.Register(courses)
	}

	if deps.WorkflowHandler != nil {
		certification := api.Group("/certification", jwtMiddleware)
		deps.WorkflowHandler.Register(certification)
	}

	if deps.AdminReviewHandler != nil {
		admin := app.Group("/api/admin/certification", jwtMiddleware, middleware.RequireRole("admin"))
		deps.AdminReviewHandler.Register(admin)
	}

	if deps.WebhookHandler != nil {
		webhooks := api.Group("/webhooks", middleware.RateLimit("webhooks", cfg.WebhookRateLimit, cfg.WebhookRateWindow))
		deps.WebhookHandler.Register(webhooks)
	}
}
