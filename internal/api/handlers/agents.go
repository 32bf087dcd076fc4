package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/voice-sales-agent/internal/domain"
	"github.com/acme/voice-sales-agent/internal/orchestrator"
)

type createAgentRequest struct {
	Name               string   `json:"name"`
	Vendor             string   `json:"vendor"`
	APIKey             string   `json:"api_key"`
	PrimaryLanguage    string   `json:"primary_language"`
	SupportedLanguages []string `json:"supported_languages"`
	TTSProvider        string   `json:"tts_provider"`
	TTSVoiceID         string   `json:"tts_voice_id"`
	TTSVoiceName       string   `json:"tts_voice_name"`
	STTProvider        string   `json:"stt_provider"`
	LLMProvider        string   `json:"llm_provider"`
	LLMModel           string   `json:"llm_model"`
	SystemPrompt       string   `json:"system_prompt"`
	PhoneNumber        string   `json:"phone_number"`
	TelephonyProvider  string   `json:"telephony_provider"`
}

type agentResponse struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Vendor             string    `json:"vendor"`
	VendorAgentID      *string   `json:"vendor_agent_id,omitempty"`
	PrimaryLanguage    string    `json:"primary_language"`
	SupportedLanguages []string  `json:"supported_languages,omitempty"`
	TTSProvider        string    `json:"tts_provider"`
	TTSVoiceID         string    `json:"tts_voice_id"`
	STTProvider        string    `json:"stt_provider"`
	LLMProvider        string    `json:"llm_provider"`
	LLMModel           string    `json:"llm_model"`
	PhoneNumber        string    `json:"phone_number"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
}

func (h *HandlerSet) createAgent(ctx *fiber.Ctx) error {
	var req createAgentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	agent, err := h.svc.CreateAgent(ctx.Context(), orchestrator.CreateAgentInput{
		Name:               req.Name,
		Vendor:             domain.Vendor(req.Vendor),
		APIKey:             req.APIKey,
		PrimaryLanguage:    req.PrimaryLanguage,
		SupportedLanguages: req.SupportedLanguages,
		TTSProvider:        req.TTSProvider,
		TTSVoiceID:         req.TTSVoiceID,
		TTSVoiceName:       req.TTSVoiceName,
		STTProvider:        req.STTProvider,
		LLMProvider:        req.LLMProvider,
		LLMModel:           req.LLMModel,
		SystemPrompt:       req.SystemPrompt,
		PhoneNumber:        req.PhoneNumber,
		TelephonyProvider:  req.TelephonyProvider,
	})
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusCreated).JSON(toAgentResponse(agent))
}

type updateAgentRequest struct {
	Name               string   `json:"name"`
	PrimaryLanguage    string   `json:"primary_language"`
	SupportedLanguages []string `json:"supported_languages"`
	TTSVoiceID         string   `json:"tts_voice_id"`
	TTSVoiceName       string   `json:"tts_voice_name"`
	LLMModel           string   `json:"llm_model"`
	SystemPrompt       string   `json:"system_prompt"`
	PhoneNumber        string   `json:"phone_number"`
}

func (h *HandlerSet) updateAgent(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid agent id")
	}
	var req updateAgentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	agent, err := h.svc.UpdateAgent(ctx.Context(), id, orchestrator.UpdateAgentInput{
		Name:               req.Name,
		PrimaryLanguage:    req.PrimaryLanguage,
		SupportedLanguages: req.SupportedLanguages,
		TTSVoiceID:         req.TTSVoiceID,
		TTSVoiceName:       req.TTSVoiceName,
		LLMModel:           req.LLMModel,
		SystemPrompt:       req.SystemPrompt,
		PhoneNumber:        req.PhoneNumber,
	})
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toAgentResponse(agent))
}

func (h *HandlerSet) getAgent(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid agent id")
	}
	agent, err := h.svc.GetAgent(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toAgentResponse(agent))
}

func (h *HandlerSet) listAgents(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 50)
	agents, err := h.svc.ListAgents(ctx.Context(), limit)
	if err != nil {
		return translateError(err)
	}
	out := make([]agentResponse, 0, len(agents))
	for _, agent := range agents {
		out = append(out, toAgentResponse(agent))
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"agents": out})
}

func (h *HandlerSet) deactivateAgent(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid agent id")
	}
	if err := h.svc.DeactivateAgent(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func toAgentResponse(agent *domain.VoiceAgent) agentResponse {
	return agentResponse{
		ID:                 agent.ID,
		Name:               agent.Name,
		Vendor:             string(agent.Vendor),
		VendorAgentID:      agent.VendorAgentID,
		PrimaryLanguage:    agent.PrimaryLanguage,
		SupportedLanguages: agent.SupportedLanguages,
		TTSProvider:        agent.TTSProvider,
		TTSVoiceID:         agent.TTSVoiceID,
		STTProvider:        agent.STTProvider,
		LLMProvider:        agent.LLMProvider,
		LLMModel:           agent.LLMModel,
		PhoneNumber:        agent.PhoneNumber,
		Active:             agent.Active,
		CreatedAt:          agent.CreatedAt,
	}
}
