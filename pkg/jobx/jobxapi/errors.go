package jobxapi

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/jobrunner/pkg/errx"
	"github.com/Abraxas-365/jobrunner/pkg/logx"
)

var apiErrors = errx.NewRegistry("JOBX_API")

var (
	ErrInvalidBody  = apiErrors.Register("INVALID_BODY", errx.TypeValidation, http.StatusBadRequest, "Request body must be a JSON object")
	ErrInvalidQuery = apiErrors.Register("INVALID_QUERY", errx.TypeValidation, http.StatusBadRequest, "Invalid query parameter")
)

// ErrorHandler renders errx errors as JSON. Wrapped causes are included only
// when debug is set.
func ErrorHandler(debug bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID := c.GetRespHeader(fiber.HeaderXRequestID, c.Get(fiber.HeaderXRequestID))

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error":      fe.Message,
				"code":       "FIBER_ERROR",
				"status":     fe.Code,
				"request_id": requestID,
			})
		}

		var e *errx.Error
		if errors.As(err, &e) {
			if e.HTTPStatus >= http.StatusInternalServerError {
				logx.WithError(err).WithFields(logx.Fields{
					"path":       c.Path(),
					"method":     c.Method(),
					"request_id": requestID,
				}).Error("jobxapi: request failed")
			}

			response := fiber.Map{
				"error":      e.Message,
				"code":       e.Code,
				"type":       string(e.Type),
				"status":     e.HTTPStatus,
				"request_id": requestID,
			}
			if len(e.Details) > 0 {
				response["details"] = e.Details
			}
			if debug && e.Err != nil {
				response["underlying_error"] = e.Err.Error()
			}
			return c.Status(e.HTTPStatus).JSON(response)
		}

		logx.WithError(err).WithFields(logx.Fields{
			"path":       c.Path(),
			"method":     c.Method(),
			"request_id": requestID,
		}).Error("jobxapi: unexpected error")

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":      "Internal Server Error",
			"type":       "INTERNAL",
			"code":       "INTERNAL_ERROR",
			"request_id": requestID,
		})
	}
}

// NotFound answers unmatched routes.
func NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":  "Route not found",
		"code":   "NOT_FOUND",
		"path":   c.Path(),
		"method": c.Method(),
	})
}
