package bland

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/acme/voice-sales-agent/internal/config"
	"github.com/acme/voice-sales-agent/internal/domain"
	"github.com/acme/voice-sales-agent/internal/provider"
)

func TestCreateAgentSerializesCallConfig(t *testing.T) {
	p := New(config.ProviderConfig{})

	desc, err := p.CreateAgent(context.Background(), provider.AgentRequest{
		Name:         "sales-de",
		SystemPrompt: "you are a sales agent",
		Language:     "de",
		LLMModel:     "gpt-4o-mini",
		TTSVoiceID:   "maya",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var cfg callConfig
	if err := json.Unmarshal([]byte(desc.VendorAgentID), &cfg); err != nil {
		t.Fatalf("vendor agent id is not a call config: %v", err)
	}
	if cfg.Prompt != "you are a sales agent" {
		t.Errorf("prompt not preserved: %q", cfg.Prompt)
	}
	if cfg.Language != "de" {
		t.Errorf("language not preserved: %q", cfg.Language)
	}
}

func TestParseWebhookCompleted(t *testing.T) {
	p := New(config.ProviderConfig{})

	payload := []byte(`{
		"call_id": "bl-1",
		"status": "completed",
		"from": "+4930111111",
		"to": "+38761123456",
		"started_at": "2025-03-01T10:00:00Z",
		"ended_at": "2025-03-01T10:03:10Z",
		"call_length": 190.7,
		"price": 0.09,
		"concatenated_transcript": "user: hello",
		"summary": "interested in demo",
		"analysis": {"sentiment": "positive"}
	}`)

	ev, err := p.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Status != domain.CallStatusCompleted {
		t.Fatalf("expected completed, got %q", ev.Status)
	}
	if ev.DurationSeconds == nil || *ev.DurationSeconds != 190 {
		t.Errorf("expected call_length truncated to 190s, got %v", ev.DurationSeconds)
	}
	if ev.Cost == nil || *ev.Cost != 0.09 {
		t.Errorf("price not carried over: %v", ev.Cost)
	}
	if ev.Sentiment == nil || *ev.Sentiment != domain.SentimentPositive {
		t.Errorf("sentiment not carried over: %v", ev.Sentiment)
	}
}

func TestParseWebhookNonTerminalDropsContent(t *testing.T) {
	p := New(config.ProviderConfig{})

	payload := []byte(`{
		"call_id": "bl-2",
		"status": "in-progress",
		"concatenated_transcript": "partial",
		"summary": "partial"
	}`)

	ev, err := p.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Status != domain.CallStatusInProgress {
		t.Fatalf("expected in_progress, got %q", ev.Status)
	}
	if ev.Transcript != nil || ev.Summary != nil {
		t.Errorf("content fields must only be read on completed calls")
	}
}

func TestMapStatusTerminalVariants(t *testing.T) {
	cases := map[string]domain.CallStatus{
		"completed": domain.CallStatusCompleted,
		"failed":    domain.CallStatusFailed,
		"no_answer": domain.CallStatusNoAnswer,
		"no-answer": domain.CallStatusNoAnswer,
		"busy":      domain.CallStatusBusy,
		"queued":    domain.CallStatusInitiated,
	}
	for vendorStatus, want := range cases {
		if got := mapStatus(vendorStatus); got != want {
			t.Errorf("mapStatus(%q) = %q, want %q", vendorStatus, got, want)
		}
	}
}
