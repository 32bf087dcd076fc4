package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/voice-sales-agent/internal/domain"
)

type startCallRequest struct {
	AgentID    string `json:"agent_id"`
	CustomerID string `json:"customer_id"`
}

type callResponse struct {
	ID              uuid.UUID  `json:"id"`
	AgentID         *uuid.UUID `json:"agent_id,omitempty"`
	CustomerID      *uuid.UUID `json:"customer_id,omitempty"`
	Vendor          string     `json:"vendor"`
	VendorCallID    *string    `json:"vendor_call_id,omitempty"`
	Direction       string     `json:"direction"`
	PhoneFrom       string     `json:"phone_from,omitempty"`
	PhoneTo         string     `json:"phone_to,omitempty"`
	Status          string     `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	Transcript      string     `json:"transcript,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	Sentiment       *string    `json:"sentiment,omitempty"`
	RecordingURL    string     `json:"recording_url,omitempty"`
	CostAmount      float64    `json:"cost_amount"`
	LeadScoreBefore *int       `json:"lead_score_before,omitempty"`
	LeadScoreAfter  *int       `json:"lead_score_after,omitempty"`
	LastError       *string    `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (h *HandlerSet) listCalls(ctx *fiber.Ctx) error {
	status := domain.CallStatus(ctx.Query("status", string(domain.CallStatusCompleted)))
	limit := ctx.QueryInt("limit", 50)
	sessions, err := h.svc.ListSessionsByStatus(ctx.Context(), status, limit)
	if err != nil {
		return translateError(err)
	}
	out := make([]callResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toCallResponse(session))
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"calls": out})
}

func (h *HandlerSet) startCall(ctx *fiber.Ctx) error {
	var req startCallRequest
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

	session, err := h.svc.StartCall(ctx.Context(), agentID, customerID)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusAccepted).JSON(toCallResponse(session))
}

func (h *HandlerSet) getCall(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid call id")
	}
	session, err := h.svc.GetSession(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toCallResponse(session))
}

func (h *HandlerSet) callEvents(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid call id")
	}
	events, err := h.svc.SessionEvents(ctx.Context(), id, ctx.QueryInt("limit", 100))
	if err != nil {
		return translateError(err)
	}
	out := make([]fiber.Map, 0, len(events))
	for _, ev := range events {
		out = append(out, fiber.Map{
			"vendor":         string(ev.Vendor),
			"vendor_call_id": ev.VendorCallID,
			"event_type":     ev.EventType,
			"status":         string(ev.Status),
			"received_at":    ev.ReceivedAt,
		})
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"events": out})
}

func (h *HandlerSet) customerCalls(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid customer id")
	}
	sessions, err := h.svc.ListSessionsByCustomer(ctx.Context(), id, ctx.QueryInt("limit", 50))
	if err != nil {
		return translateError(err)
	}
	out := make([]callResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toCallResponse(session))
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"calls": out})
}

func (h *HandlerSet) customerScore(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid customer id")
	}
	score, err := h.svc.GetLeadScore(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}
	resp := fiber.Map{
		"customer_id":        score.CustomerID,
		"overall_score":      score.OverallScore,
		"engagement_score":   score.EngagementScore,
		"interest_score":     score.InterestScore,
		"urgency_score":      score.UrgencyScore,
		"best_call_time":     score.BestCallTime,
		"preferred_language": score.PreferredLanguage,
		"last_calculated":    score.LastCalculated,
	}
	if score.PredictedOutcome != nil {
		resp["predicted_outcome"] = string(*score.PredictedOutcome)
	}
	if score.ConversionProbability != nil {
		resp["conversion_probability"] = *score.ConversionProbability
	}
	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) customerHistory(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid customer id")
	}
	interactions, err := h.svc.CustomerHistory(ctx.Context(), id, ctx.QueryInt("limit", 50))
	if err != nil {
		return translateError(err)
	}
	out := make([]fiber.Map, 0, len(interactions))
	for _, it := range interactions {
		out = append(out, fiber.Map{
			"id":          it.ID,
			"type":        it.Type,
			"subject":     it.Subject,
			"description": it.Description,
			"created_at":  it.CreatedAt,
		})
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"interactions": out})
}

func toCallResponse(session *domain.CallSession) callResponse {
	resp := callResponse{
		ID:              session.ID,
		AgentID:         session.AgentID,
		CustomerID:      session.CustomerID,
		Vendor:          string(session.Vendor),
		VendorCallID:    session.VendorCallID,
		Direction:       string(session.Direction),
		PhoneFrom:       session.PhoneFrom,
		PhoneTo:         session.PhoneTo,
		Status:          string(session.Status),
		StartedAt:       session.StartedAt,
		EndedAt:         session.EndedAt,
		DurationSeconds: session.DurationSeconds,
		Transcript:      session.Transcript,
		Summary:         session.Summary,
		RecordingURL:    session.RecordingURL,
		CostAmount:      session.CostAmount,
		LeadScoreBefore: session.LeadScoreBefore,
		LeadScoreAfter:  session.LeadScoreAfter,
		LastError:       session.LastError,
		CreatedAt:       session.CreatedAt,
		UpdatedAt:       session.UpdatedAt,
	}
	if session.Sentiment != nil {
		s := string(*session.Sentiment)
		resp.Sentiment = &s
	}
	return resp
}
