package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

type statsResponse struct {
	ActiveAgents       int     `json:"active_agents"`
	TotalCalls         int     `json:"total_calls"`
	CallsToday         int     `json:"calls_today"`
	CompletedCalls     int     `json:"completed_calls"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
	PendingQueue       int     `json:"pending_queue"`
}

func (h *HandlerSet) stats(ctx *fiber.Ctx) error {
	stats, err := h.svc.DashboardStats(ctx.Context())
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(statsResponse{
		ActiveAgents:       stats.ActiveAgents,
		TotalCalls:         stats.TotalCalls,
		CallsToday:         stats.CallsToday,
		CompletedCalls:     stats.CompletedCalls,
		AvgDurationSeconds: stats.AvgDurationSeconds,
		PendingQueue:       stats.PendingQueue,
	})
}
