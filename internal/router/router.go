package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/dsa-autograder/internal/config"
	"github.com/noah-isme/dsa-autograder/internal/handler"
	"github.com/noah-isme/dsa-autograder/internal/middleware"
	"github.com/noah-isme/dsa-autograder/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingHandler   *handler.GradingHandler
	JobHandler       *handler.JobHandler
	JobStreamHandler *handler.JobStreamHandler
	ReportHandler    *handler.ReportHandler
	PageHandler      *handler.PageHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	v1 := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	v1.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(app, middleware.RateLimit("grade", cfg.GradeRateLimit, time.Minute))
	}

	api := app.Group("/api")
	if deps.JobHandler != nil {
		deps.JobHandler.Register(api)
	}
	if deps.ReportHandler != nil {
		deps.ReportHandler.Register(api)
	}

	if deps.JobStreamHandler != nil {
		deps.JobStreamHandler.Register(app.Group("/ws"))
	}

	if deps.PageHandler != nil {
		deps.PageHandler.Register(app)
	}
}
