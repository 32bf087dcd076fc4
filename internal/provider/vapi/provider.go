package vapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/acme/voice-sales-agent/internal/config"
	"github.com/acme/voice-sales-agent/internal/domain"
	"github.com/acme/voice-sales-agent/internal/provider"
)

const defaultBaseURL = "https://api.vapi.ai"

type Provider struct {
	client        *provider.Client
	phoneNumberID string
}

func New(cfg config.ProviderConfig) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		client: provider.NewClient(domain.VendorVapi, baseURL, cfg.RequestTimeout, map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
		}),
		phoneNumberID: cfg.PhoneNumberID,
	}
}

func (p *Provider) Vendor() domain.Vendor {
	return domain.VendorVapi
}

func (p *Provider) CreateAgent(ctx context.Context, req provider.AgentRequest) (provider.AgentDescriptor, error) {
	payload := map[string]any{
		"name": req.Name,
		"model": map[string]any{
			"provider":    req.LLMProvider,
			"model":       req.LLMModel,
			"messages":    []map[string]string{{"role": "system", "content": req.SystemPrompt}},
			"temperature": 0.7,
		},
		"voice": map[string]any{
			"provider": req.TTSProvider,
			"voiceId":  req.TTSVoiceID,
		},
		"transcriber": map[string]any{
			"provider": req.STTProvider,
			"language": req.Language,
		},
		"firstMessage":          provider.Greeting(req.Language),
		"silenceTimeoutSeconds": 30,
		"maxDurationSeconds":    600,
		"backgroundSound":       "office",
		"backchannelingEnabled": true,
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := p.client.PostJSON(ctx, "create assistant", "/assistant", payload, &out); err != nil {
		return provider.AgentDescriptor{}, err
	}
	return provider.AgentDescriptor{VendorAgentID: out.ID}, nil
}

func (p *Provider) StartOutboundCall(ctx context.Context, req provider.CallRequest) (provider.CallHandle, error) {
	payload := map[string]any{
		"assistantId": req.VendorAgentID,
		"customer": map[string]any{
			"number": req.PhoneNumber,
			"name":   req.Customer.Name,
		},
		"phoneNumberId": p.phoneNumberID,
		"assistantOverrides": map[string]any{
			"variableValues": map[string]string{
				"customer_name":    req.Customer.Name,
				"customer_company": req.Customer.Company,
				"customer_notes":   req.Customer.Notes,
			},
		},
	}

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := p.client.PostJSON(ctx, "start call", "/call/phone", payload, &out); err != nil {
		return provider.CallHandle{}, err
	}
	return provider.CallHandle{
		VendorCallID:  out.ID,
		InitialStatus: mapStatus(out.Status),
	}, nil
}

func (p *Provider) GetCallStatus(ctx context.Context, vendorCallID string) (provider.Event, error) {
	var call callPayload
	if err := p.client.GetJSON(ctx, "get call", "/call/"+vendorCallID, &call); err != nil {
		return provider.Event{}, err
	}
	ev := provider.Event{
		Vendor:       domain.VendorVapi,
		EventType:    "status-poll",
		VendorCallID: call.ID,
		Status:       mapStatus(call.Status),
	}
	fillTimes(&ev, call)
	return ev, nil
}

type callPayload struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	StartedAt string `json:"startedAt"`
	EndedAt   string `json:"endedAt"`
	Customer  struct {
		Number string `json:"number"`
	} `json:"customer"`
	PhoneNumber struct {
		Number string `json:"number"`
	} `json:"phoneNumber"`
}

type webhookPayload struct {
	Message struct {
		Type         string      `json:"type"`
		Call         callPayload `json:"call"`
		Transcript   string      `json:"transcript"`
		Summary      string      `json:"summary"`
		RecordingURL string      `json:"recordingUrl"`
		Cost         *float64    `json:"cost"`
	} `json:"message"`
}

// ParseWebhook normalizes the nested message.call shape. Duration is not
// reported directly and is derived from the startedAt/endedAt pair once
// the end-of-call-report arrives.
func (p *Provider) ParseWebhook(payload []byte) (provider.Event, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return provider.Event{}, fmt.Errorf("decode vapi webhook: %w", err)
	}
	msg := body.Message
	call := msg.Call

	ev := provider.Event{
		Vendor:       domain.VendorVapi,
		EventType:    msg.Type,
		VendorCallID: call.ID,
		Status:       mapStatus(call.Status),
	}
	if call.Customer.Number != "" {
		ev.PhoneFrom = &call.Customer.Number
	}
	if call.PhoneNumber.Number != "" {
		ev.PhoneTo = &call.PhoneNumber.Number
	}
	fillTimes(&ev, call)

	if msg.Type == "end-of-call-report" {
		ev.Status = domain.CallStatusCompleted
		if msg.Transcript != "" {
			ev.Transcript = &msg.Transcript
		}
		if msg.Summary != "" {
			ev.Summary = &msg.Summary
		}
		if msg.RecordingURL != "" {
			ev.RecordingURL = &msg.RecordingURL
		}
		ev.Cost = msg.Cost
		if ev.StartedAt != nil && ev.EndedAt != nil {
			// Skewed vendor clocks can put endedAt before startedAt;
			// a session duration is never negative.
			d := int(ev.EndedAt.Sub(*ev.StartedAt).Seconds())
			if d < 0 {
				d = 0
			}
			ev.DurationSeconds = &d
		}
	}
	return ev, nil
}

func fillTimes(ev *provider.Event, call callPayload) {
	if t, err := time.Parse(time.RFC3339, call.StartedAt); err == nil {
		ev.StartedAt = &t
	}
	if t, err := time.Parse(time.RFC3339, call.EndedAt); err == nil {
		ev.EndedAt = &t
	}
}

func mapStatus(s string) domain.CallStatus {
	switch s {
	case "queued", "scheduled":
		return domain.CallStatusInitiated
	case "ringing":
		return domain.CallStatusRinging
	case "in-progress", "forwarding":
		return domain.CallStatusInProgress
	case "ended":
		return domain.CallStatusCompleted
	default:
		return domain.CallStatusInitiated
	}
}
