package main

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/Abraxas-365/jobrunner/pkg/jobx/jobxapi"
	"github.com/Abraxas-365/jobrunner/pkg/logx"
)

const serviceName = "jobrunner"

// newApp builds the fiber app. withJobs mounts the jobs API; worker and
// reaper processes only expose /health and /metrics.
func newApp(c *Container, withJobs bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "jobrunner",
		DisableStartupMessage: true,
		ErrorHandler:          jobxapi.ErrorHandler(c.Config.Server.Debug),
		BodyLimit:             1 * 1024 * 1024,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  c.Config.Server.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Idempotency-Key, X-Request-ID",
		AllowMethods:  "GET, POST, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID, Location",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${respHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	app.Get("/health", jobxapi.HealthHandler(serviceName, c.Config.Server.Version, c.HealthChecks()...))
	app.Get("/metrics", jobxapi.MetricsHandler(c.Prometheus))

	if withJobs {
		app.Get("/", infoHandler(c))
		jobxapi.NewHandlers(c.Service).RegisterRoutes(app, c.Guard())
		logx.Info("✓ Job routes registered")
	}

	app.Use(jobxapi.NotFound)
	return app
}

// infoHandler returns basic API information
func infoHandler(c *Container) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"service":     serviceName,
			"version":     c.Config.Server.Version,
			"description": "Durable background job runner",
			"job_types":   c.Registry.Types(),
			"auth":        c.Tokens != nil,
			"endpoints": fiber.Map{
				"submit":  "POST /api/v1/jobs",
				"list":    "GET /api/v1/jobs",
				"get":     "GET /api/v1/jobs/:id",
				"result":  "GET /api/v1/jobs/:id/result",
				"queue":   "GET /api/v1/queue/stats",
				"health":  "GET /health",
				"metrics": "GET /metrics",
			},
		})
	}
}

func printRouteSummary(port string) {
	logx.Info("📋 Route Summary:")
	logx.Info("   ├─ Jobs: /api/v1/jobs, /api/v1/jobs/:id, /api/v1/jobs/:id/result")
	logx.Info("   ├─ Queue: /api/v1/queue/stats")
	logx.Info("   ├─ Health: /health")
	logx.Info("   └─ Metrics: /metrics")
	logx.Info(strings.Repeat("=", 61))
	logx.Infof("🚀 Server listening on port %s", port)
	logx.Info(strings.Repeat("=", 61))
}

// runServer serves app on port until ctx is cancelled, then shuts it down
// within timeout.
func runServer(ctx context.Context, app *fiber.App, port string, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logx.Info("Shutting down HTTP server gracefully...")
	if err := app.ShutdownWithTimeout(timeout); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
		return err
	}
	logx.Info("✅ Server exited successfully")
	return nil
}
