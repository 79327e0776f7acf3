// Package jobxapi exposes job submission and inspection over HTTP with fiber.
package jobxapi

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/jobrunner/pkg/auth"
	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
	"github.com/Abraxas-365/jobrunner/pkg/ptrx"
)

// HeaderIdempotencyKey supplies the idempotency key when the body omits it.
const HeaderIdempotencyKey = "Idempotency-Key"

// Guard protects the job routes. auth.TokenMiddleware satisfies it.
type Guard interface {
	Authenticate() fiber.Handler
	RequireScope(scopes ...string) fiber.Handler
}

type Handlers struct {
	service *jobx.Service
}

func NewHandlers(service *jobx.Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes mounts /api/v1/jobs on router. A nil guard leaves the
// routes unauthenticated.
func (h *Handlers) RegisterRoutes(router fiber.Router, guard Guard) {
	jobs := router.Group("/api/v1/jobs")

	var read, write fiber.Handler
	if guard != nil {
		jobs.Use(guard.Authenticate())
		read = guard.RequireScope(auth.ScopeJobsRead)
		write = guard.RequireScope(auth.ScopeJobsWrite)
	}

	jobs.Post("/", chain(write, h.Submit)...)
	jobs.Get("/", chain(read, h.List)...)
	jobs.Get("/:id", chain(read, h.Get)...)
	jobs.Get("/:id/result", chain(read, h.Result)...)

	queue := router.Group("/api/v1/queue")
	if guard != nil {
		queue.Use(guard.Authenticate())
	}
	queue.Get("/stats", chain(read, h.QueueStats)...)
}

func chain(scope, handler fiber.Handler) []fiber.Handler {
	if scope == nil {
		return []fiber.Handler{handler}
	}
	return []fiber.Handler{scope, handler}
}

// Submit handles POST /api/v1/jobs. It answers 201 for a new job and 200
// when the idempotency key matched an existing one.
func (h *Handlers) Submit(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return apiErrors.NewWithCause(ErrInvalidBody, err)
	}
	if req.IdempotencyKey == nil {
		req.IdempotencyKey = ptrx.NonEmpty(strings.TrimSpace(c.Get(HeaderIdempotencyKey)))
	}

	job, created, err := h.service.Submit(c.UserContext(), jobx.NewJob{
		Type:           req.Type,
		Payload:        req.Payload,
		IdempotencyKey: req.IdempotencyKey,
		MaxAttempts:    req.MaxAttempts,
	})
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
		c.Location("/api/v1/jobs/" + job.ID.String())
	}
	return c.Status(status).JSON(job)
}

func (h *Handlers) Get(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(job)
}

func (h *Handlers) Result(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toResult(job))
}

// List handles GET /api/v1/jobs?status=&type=&page=&page_size=.
func (h *Handlers) List(c *fiber.Ctx) error {
	page, err := queryInt(c, "page")
	if err != nil {
		return err
	}
	size, err := queryInt(c, "page_size")
	if err != nil {
		return err
	}

	result, err := h.service.List(c.UserContext(),
		jobx.ListFilter{
			Status: jobx.Status(c.Query("status")),
			Type:   c.Query("type"),
		},
		kernel.PaginationOptions{Page: page, PageSize: size},
	)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func queryInt(c *fiber.Ctx, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n := c.QueryInt(name, -1)
	if n < 0 {
		return 0, apiErrors.New(ErrInvalidQuery).
			WithDetail("param", name).
			WithDetail("value", raw)
	}
	return n, nil
}

// QueueStats handles GET /api/v1/queue/stats.
func (h *Handlers) QueueStats(c *fiber.Ctx) error {
	stats, err := h.service.QueueStats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}
