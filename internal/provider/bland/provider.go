package bland

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

const defaultBaseURL = "https://api.bland.ai/v1"

type Provider struct {
	client     *provider.Client
	fromNumber string
	webhookURL string
}

func New(cfg config.ProviderConfig) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		client: provider.NewClient(domain.VendorBland, baseURL, cfg.RequestTimeout, map[string]string{
			"authorization": cfg.APIKey,
		}),
		fromNumber: cfg.FromNumber,
		webhookURL: cfg.WebhookURL,
	}
}

func (p *Provider) Vendor() domain.Vendor {
	return domain.VendorBland
}

// callConfig is what CreateAgent stores in place of a vendor agent id.
// Bland has no persistent agents; the full task config travels with
// every call instead.
type callConfig struct {
	Name     string `json:"name"`
	Prompt   string `json:"prompt"`
	Voice    string `json:"voice"`
	Language string `json:"language"`
	Model    string `json:"model"`
}

func (p *Provider) CreateAgent(_ context.Context, req provider.AgentRequest) (provider.AgentDescriptor, error) {
	cfg := callConfig{
		Name:     req.Name,
		Prompt:   req.SystemPrompt,
		Voice:    req.TTSVoiceID,
		Language: req.Language,
		Model:    req.LLMModel,
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return provider.AgentDescriptor{}, fmt.Errorf("encode bland call config: %w", err)
	}
	return provider.AgentDescriptor{VendorAgentID: string(raw), Raw: raw}, nil
}

func (p *Provider) StartOutboundCall(ctx context.Context, req provider.CallRequest) (provider.CallHandle, error) {
	var cfg callConfig
	if err := json.Unmarshal([]byte(req.VendorAgentID), &cfg); err != nil {
		return provider.CallHandle{}, fmt.Errorf("decode bland call config: %w", err)
	}

	payload := map[string]any{
		"phone_number":      req.PhoneNumber,
		"task":              cfg.Prompt,
		"voice":             cfg.Voice,
		"language":          cfg.Language,
		"model":             cfg.Model,
		"first_sentence":    provider.Greeting(cfg.Language),
		"wait_for_greeting": true,
		"record":            true,
		"from":              p.fromNumber,
		"webhook":           p.webhookURL,
		"metadata": map[string]string{
			"customer_id":   req.Customer.ID.String(),
			"customer_name": req.Customer.Name,
		},
	}

	var out struct {
		CallID string `json:"call_id"`
		Status string `json:"status"`
	}
	if err := p.client.PostJSON(ctx, "start call", "/calls", payload, &out); err != nil {
		return provider.CallHandle{}, err
	}
	return provider.CallHandle{
		VendorCallID:  out.CallID,
		InitialStatus: domain.CallStatusInitiated,
	}, nil
}

func (p *Provider) GetCallStatus(ctx context.Context, vendorCallID string) (provider.Event, error) {
	var call callPayload
	if err := p.client.GetJSON(ctx, "get call", "/calls/"+vendorCallID, &call); err != nil {
		return provider.Event{}, err
	}
	return normalize("status-poll", call), nil
}

type callPayload struct {
	CallID                 string   `json:"call_id"`
	Status                 string   `json:"status"`
	From                   string   `json:"from"`
	To                     string   `json:"to"`
	StartedAt              string   `json:"started_at"`
	EndedAt                string   `json:"ended_at"`
	CallLength             *float64 `json:"call_length"`
	Price                  *float64 `json:"price"`
	ConcatenatedTranscript string   `json:"concatenated_transcript"`
	RecordingURL           string   `json:"recording_url"`
	Summary                string   `json:"summary"`
	Analysis               struct {
		Sentiment string `json:"sentiment"`
	} `json:"analysis"`
}

// ParseWebhook normalizes the flat top-level shape. Call length is
// already reported in whole seconds.
func (p *Provider) ParseWebhook(payload []byte) (provider.Event, error) {
	var call callPayload
	if err := json.Unmarshal(payload, &call); err != nil {
		return provider.Event{}, fmt.Errorf("decode bland webhook: %w", err)
	}
	return normalize(call.Status, call), nil
}

func normalize(eventType string, call callPayload) provider.Event {
	ev := provider.Event{
		Vendor:       domain.VendorBland,
		EventType:    eventType,
		VendorCallID: call.CallID,
		Status:       mapStatus(call.Status),
	}
	if call.From != "" {
		ev.PhoneFrom = &call.From
	}
	if call.To != "" {
		ev.PhoneTo = &call.To
	}
	if t, err := time.Parse(time.RFC3339, call.StartedAt); err == nil {
		ev.StartedAt = &t
	}
	if t, err := time.Parse(time.RFC3339, call.EndedAt); err == nil {
		ev.EndedAt = &t
	}
	if call.CallLength != nil {
		d := int(*call.CallLength)
		ev.DurationSeconds = &d
	}
	ev.Cost = call.Price

	if call.Status == "completed" {
		if call.ConcatenatedTranscript != "" {
			ev.Transcript = &call.ConcatenatedTranscript
		}
		if call.RecordingURL != "" {
			ev.RecordingURL = &call.RecordingURL
		}
		if call.Summary != "" {
			ev.Summary = &call.Summary
		}
		if s := mapSentiment(call.Analysis.Sentiment); s != nil {
			ev.Sentiment = s
		}
	}
	return ev
}

func mapStatus(s string) domain.CallStatus {
	switch s {
	case "queued", "new", "allocated", "started":
		return domain.CallStatusInitiated
	case "ringing":
		return domain.CallStatusRinging
	case "in-progress", "in_progress":
		return domain.CallStatusInProgress
	case "completed":
		return domain.CallStatusCompleted
	case "failed", "error":
		return domain.CallStatusFailed
	case "no_answer", "no-answer":
		return domain.CallStatusNoAnswer
	case "busy":
		return domain.CallStatusBusy
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
