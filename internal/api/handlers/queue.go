package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/voice-sales-agent/internal/domain"
	"github.com/acme/voice-sales-agent/internal/orchestrator"
)

type enqueueRequest struct {
	AgentID      string     `json:"agent_id"`
	CustomerID   string     `json:"customer_id"`
	Priority     int        `json:"priority"`
	ScheduledFor *time.Time `json:"scheduled_for"`
	MaxAttempts  int        `json:"max_attempts"`
}

type queueEntryResponse struct {
	ID            uuid.UUID  `json:"id"`
	AgentID       uuid.UUID  `json:"agent_id"`
	CustomerID    uuid.UUID  `json:"customer_id"`
	Priority      int        `json:"priority"`
	ScheduledFor  *time.Time `json:"scheduled_for,omitempty"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	SessionID     *uuid.UUID `json:"session_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (h *HandlerSet) enqueue(ctx *fiber.Ctx) error {
	var req enqueueRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid agent id")
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid customer id")
	}

	entry, err := h.svc.Enqueue(ctx.Context(), orchestrator.EnqueueInput{
		AgentID:      agentID,
		CustomerID:   customerID,
		Priority:     req.Priority,
		ScheduledFor: req.ScheduledFor,
		MaxAttempts:  req.MaxAttempts,
	})
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusCreated).JSON(toQueueEntryResponse(entry))
}

func (h *HandlerSet) listQueue(ctx *fiber.Ctx) error {
	entries, err := h.svc.ListQueue(ctx.Context(), ctx.QueryInt("limit", 100))
	if err != nil {
		return translateError(err)
	}
	out := make([]queueEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toQueueEntryResponse(entry))
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"queue": out})
}

func (h *HandlerSet) cancelQueued(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid queue entry id")
	}
	if err := h.svc.CancelQueued(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func toQueueEntryResponse(entry *domain.QueueEntry) queueEntryResponse {
	return queueEntryResponse{
		ID:            entry.ID,
		AgentID:       entry.AgentID,
		CustomerID:    entry.CustomerID,
		Priority:      entry.Priority,
		ScheduledFor:  entry.ScheduledFor,
		Status:        string(entry.Status),
		Attempts:      entry.Attempts,
		MaxAttempts:   entry.MaxAttempts,
		LastAttemptAt: entry.LastAttemptAt,
		SessionID:     entry.SessionID,
		CreatedAt:     entry.CreatedAt,
		UpdatedAt:     entry.UpdatedAt,
	}
}
