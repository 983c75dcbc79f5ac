package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/handler"
	"github.com/noah-isme/gema-grading-api/internal/middleware"
	"github.com/noah-isme/gema-grading-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssessmentHandler *handler.AssessmentHandler
	GradingHandler    *handler.GradingHandler
	ReviewHandler     *handler.ReviewHandler
	ResultsHandler    *handler.ResultsHandler
	ActivityHandler   *handler.ActivityHandler
	JWTMiddleware     fiber.Handler
	// GradeLimiter guards the ingestion hook; nil disables limiting.
	GradeLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	staffOnly := middleware.RequireRole("admin", "teacher")

	assessments := api.Group("/assessments", jwtMiddleware, staffOnly)
	if deps.AssessmentHandler != nil {
		deps.AssessmentHandler.Register(assessments)
	}
	if deps.GradingHandler != nil {
		var guards []fiber.Handler
		if deps.GradeLimiter != nil {
			guards = append(guards, deps.GradeLimiter)
		}
		deps.GradingHandler.Register(assessments, guards...)
	}
	if deps.ResultsHandler != nil {
		deps.ResultsHandler.Register(assessments)
	}
	if deps.ReviewHandler != nil {
		deps.ReviewHandler.Register(assessments)
	}

	if deps.ActivityHandler != nil {
		activity := api.Group("/activity", jwtMiddleware, staffOnly)
		deps.ActivityHandler.Register(activity)
	}
}
