package retell

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/acme/voice-sales-agent/internal/config"
	"github.com/acme/voice-sales-agent/internal/domain"
	"github.com/acme/voice-sales-agent/internal/provider"
)

const defaultBaseURL = "https://api.retellai.com"

type Provider struct {
	client     *provider.Client
	fromNumber string
}

func New(cfg config.ProviderConfig) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		client: provider.NewClient(domain.VendorRetell, baseURL, cfg.RequestTimeout, map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
		}),
		fromNumber: cfg.FromNumber,
	}
}

func (p *Provider) Vendor() domain.Vendor {
	return domain.VendorRetell
}

// CreateAgent provisions in two steps: a Retell LLM carrying the system
// prompt, then an agent bound to that LLM over its websocket endpoint.
func (p *Provider) CreateAgent(ctx context.Context, req provider.AgentRequest) (provider.AgentDescriptor, error) {
	llmPayload := map[string]any{
		"model":          req.LLMModel,
		"general_prompt": req.SystemPrompt,
		"begin_message":  provider.Greeting(req.Language),
		"general_tools":  []any{},
	}
	var llmOut struct {
		LLMID string `json:"llm_id"`
	}
	if err := p.client.PostJSON(ctx, "create llm", "/create-retell-llm", llmPayload, &llmOut); err != nil {
		return provider.AgentDescriptor{}, err
	}

	agentPayload := map[string]any{
		"llm_websocket_url":        "wss://api.retellai.com/llm-websocket/" + llmOut.LLMID,
		"agent_name":               req.Name,
		"voice_id":                 req.TTSVoiceID,
		"language":                 retellLanguage(req.Language),
		"ambient_sound":            "coffee-shop",
		"enable_backchannel":       true,
		"backchannel_frequency":    0.8,
		"interruption_sensitivity": 0.8,
		"responsiveness":           0.8,
	}
	var out struct {
		AgentID string `json:"agent_id"`
	}
	if err := p.client.PostJSON(ctx, "create agent", "/create-agent", agentPayload, &out); err != nil {
		return provider.AgentDescriptor{}, err
	}
	return provider.AgentDescriptor{VendorAgentID: out.AgentID}, nil
}

func (p *Provider) StartOutboundCall(ctx context.Context, req provider.CallRequest) (provider.CallHandle, error) {
	payload := map[string]any{
		"agent_id":    req.VendorAgentID,
		"to_number":   req.PhoneNumber,
		"from_number": p.fromNumber,
		"retell_llm_dynamic_variables": map[string]string{
			"customer_name":    req.Customer.Name,
			"customer_company": req.Customer.Company,
		},
	}
	var out struct {
		CallID     string `json:"call_id"`
		CallStatus string `json:"call_status"`
	}
	if err := p.client.PostJSON(ctx, "start call", "/create-phone-call", payload, &out); err != nil {
		return provider.CallHandle{}, err
	}
	return provider.CallHandle{
		VendorCallID:  out.CallID,
		InitialStatus: mapStatus(out.CallStatus),
	}, nil
}

func (p *Provider) GetCallStatus(ctx context.Context, vendorCallID string) (provider.Event, error) {
	var call callPayload
	if err := p.client.GetJSON(ctx, "get call", "/get-call/"+vendorCallID, &call); err != nil {
		return provider.Event{}, err
	}
	ev := normalize("status-poll", call)
	return ev, nil
}

type callPayload struct {
	CallID         string `json:"call_id"`
	CallStatus     string `json:"call_status"`
	FromNumber     string `json:"from_number"`
	ToNumber       string `json:"to_number"`
	StartTimestamp *int64 `json:"start_timestamp"`
	EndTimestamp   *int64 `json:"end_timestamp"`
	DurationMs     *int64 `json:"duration_ms"`
	Transcript     string `json:"transcript"`
	RecordingURL   string `json:"recording_url"`
	CallAnalysis   struct {
		CallSummary   string `json:"call_summary"`
		UserSentiment string `json:"user_sentiment"`
	} `json:"call_analysis"`
}

type webhookPayload struct {
	Event string      `json:"event"`
	Call  callPayload `json:"call"`
}

// ParseWebhook normalizes the flat call object. Duration arrives in
// milliseconds and is floored to whole seconds.
func (p *Provider) ParseWebhook(payload []byte) (provider.Event, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return provider.Event{}, fmt.Errorf("decode retell webhook: %w", err)
	}
	ev := normalize(body.Event, body.Call)
	return ev, nil
}

func normalize(eventType string, call callPayload) provider.Event {
	ev := provider.Event{
		Vendor:       domain.VendorRetell,
		EventType:    eventType,
		VendorCallID: call.CallID,
		Status:       mapStatus(call.CallStatus),
	}
	if call.FromNumber != "" {
		ev.PhoneFrom = &call.FromNumber
	}
	if call.ToNumber != "" {
		ev.PhoneTo = &call.ToNumber
	}
	if call.StartTimestamp != nil {
		t := time.UnixMilli(*call.StartTimestamp).UTC()
		ev.StartedAt = &t
	}
	if call.EndTimestamp != nil {
		t := time.UnixMilli(*call.EndTimestamp).UTC()
		ev.EndedAt = &t
	}

	if eventType == "call_ended" || eventType == "call_analyzed" || ev.Status.IsTerminal() {
		if call.Transcript != "" {
			ev.Transcript = &call.Transcript
		}
		if call.RecordingURL != "" {
			ev.RecordingURL = &call.RecordingURL
		}
		if call.DurationMs != nil {
			d := int(*call.DurationMs / 1000)
			ev.DurationSeconds = &d
		}
		if call.CallAnalysis.CallSummary != "" {
			ev.Summary = &call.CallAnalysis.CallSummary
		}
		if s := mapSentiment(call.CallAnalysis.UserSentiment); s != nil {
			ev.Sentiment = s
		}
	}
	return ev
}

func mapStatus(s string) domain.CallStatus {
	switch s {
	case "registered":
		return domain.CallStatusInitiated
	case "ongoing":
		return domain.CallStatusInProgress
	case "ended":
		return domain.CallStatusCompleted
	case "error":
		return domain.CallStatusFailed
	default:
		return domain.CallStatusInitiated
	}
}

func mapSentiment(s string) *domain.Sentiment {
	switch strings.ToLower(s) {
	case "positive":
		v := domain.SentimentPositive
		return &v
	case "negative":
		v := domain.SentimentNegative
		return &v
	case "neutral":
		v := domain.SentimentNeutral
		return &v
	default:
		return nil
	}
}

func retellLanguage(lang string) string {
	switch lang {
	case "de":
		return "de-DE"
	case "en":
		return "en-US"
	default:
		return lang
	}
}
