package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp builds the fiber application serving handlers.
func NewApp(handlers *APIHandlers) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/health", handlers.HealthCheck)

	w := app.Group("/workspaces")
	w.Put("/:id", handlers.SaveWorkspace)
	w.Get("/:id", handlers.GetWorkspace)
	w.Get("/:id/acts", handlers.ListActs)
	w.Post("/:id/acts", handlers.CreateAct)
	w.Get("/:id/triggers", handlers.ListTriggers)
	w.Post("/:id/triggers", handlers.CreateTrigger)

	a := app.Group("/acts")
	a.Get("/:id", handlers.GetAct)
	a.Post("/:id/cancel", handlers.CancelAct)
	a.Post("/:id/start", handlers.StartAct)
	a.Post("/:id/retry", handlers.RetryAct)

	app.Get("/tasks/:id/generations", handlers.ListGenerations)

	t := app.Group("/triggers")
	t.Get("/:id", handlers.GetTrigger)
	t.Put("/:id", handlers.UpdateTrigger)
	t.Delete("/:id", handlers.DeleteTrigger)

	app.Post("/webhooks/:triggerId", handlers.Webhook)

	return app
}
