package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/voice-sales-agent/internal/orchestrator"
	"github.com/acme/voice-sales-agent/pkg/logger"
)

// HealthCheck is a named connectivity check.
type HealthCheck func(ctx context.Context) error

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	svc      *orchestrator.Service
	webhooks *WebhookHandler
	checks   map[string]HealthCheck
	log      *logger.Logger
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(svc *orchestrator.Service, webhooks *WebhookHandler, checks map[string]HealthCheck, log *logger.Logger) *HandlerSet {
	return &HandlerSet{svc: svc, webhooks: webhooks, checks: checks, log: log}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Get("/stats", h.stats)

	agents := v1.Group("/agents")
	agents.Post("/", h.createAgent)
	agents.Get("/", h.listAgents)
	agents.Get("/:id", h.getAgent)
	agents.Put("/:id", h.updateAgent)
	agents.Post("/:id/deactivate", h.deactivateAgent)

	calls := v1.Group("/calls")
	calls.Post("/", h.startCall)
	calls.Get("/", h.listCalls)
	calls.Get("/:id", h.getCall)
	calls.Get("/:id/events", h.callEvents)

	queue := v1.Group("/queue")
	queue.Post("/", h.enqueue)
	queue.Get("/", h.listQueue)
	queue.Post("/:id/cancel", h.cancelQueued)

	customers := v1.Group("/customers")
	customers.Get("/:id/calls", h.customerCalls)
	customers.Get("/:id/score", h.customerScore)
	customers.Get("/:id/history", h.customerHistory)

	h.webhooks.Register(app)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)
	for name, check := range h.checks {
		if err := check(healthCtx); err != nil {
			errs[name] = err.Error()
		}
	}

	status := fiber.StatusOK
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
	}
	return ctx.Status(status).JSON(fiber.Map{"status": "ok", "errors": errs})
}
