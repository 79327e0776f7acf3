package jobxapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/jobrunner/pkg/asyncx"
)

const healthTimeout = 2 * time.Second

// HealthCheck pings one dependency.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler reports "healthy" when every check passes and answers 503
// with "degraded" otherwise. Checks run concurrently, each bounded by a
// short timeout.
func HealthHandler(service, version string, checks ...HealthCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fns := make([]func(context.Context) (struct{}, error), len(checks))
		for i, check := range checks {
			fns[i] = func(ctx context.Context) (struct{}, error) {
				return asyncx.WithTimeout(ctx, healthTimeout, func(ctx context.Context) (struct{}, error) {
					return struct{}{}, check.Ping(ctx)
				})
			}
		}

		health := fiber.Map{
			"status":  "healthy",
			"service": service,
			"version": version,
		}
		for i, res := range asyncx.AllSettled(c.UserContext(), fns...) {
			name := checks[i].Name
			if res.OK() {
				health[name] = "healthy"
				continue
			}
			health[name] = "unhealthy"
			health[name+"_error"] = res.Err.Error()
			health["status"] = "degraded"
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}
