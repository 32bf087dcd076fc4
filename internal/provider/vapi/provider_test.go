package vapi

import (
	"testing"

	"github.com/acme/voice-sales-agent/internal/config"
	"github.com/acme/voice-sales-agent/internal/domain"
)

func TestParseWebhookStatusUpdate(t *testing.T) {
	p := New(config.ProviderConfig{})

	payload := []byte(`{
		"message": {
			"type": "status-update",
			"call": {"id": "call-123", "status": "ringing"}
		}
	}`)

	ev, err := p.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.VendorCallID != "call-123" {
		t.Errorf("expected call id call-123, got %q", ev.VendorCallID)
	}
	if ev.Status != domain.CallStatusRinging {
		t.Errorf("expected status ringing, got %q", ev.Status)
	}
	if ev.Terminal() {
		t.Errorf("status update must not be terminal")
	}
}

func TestParseWebhookEndOfCallReport(t *testing.T) {
	p := New(config.ProviderConfig{})

	payload := []byte(`{
		"message": {
			"type": "end-of-call-report",
			"call": {
				"id": "call-456",
				"status": "ended",
				"startedAt": "2025-03-01T10:00:00Z",
				"endedAt": "2025-03-01T10:02:05Z",
				"customer": {"number": "+38761123456"}
			},
			"transcript": "hello there",
			"summary": "customer asked for pricing",
			"recordingUrl": "https://cdn.example.com/rec.mp3",
			"cost": 0.42
		}
	}`)

	ev, err := p.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Status != domain.CallStatusCompleted {
		t.Fatalf("expected completed, got %q", ev.Status)
	}
	if !ev.Terminal() {
		t.Fatalf("end-of-call-report must be terminal")
	}
	if ev.DurationSeconds == nil || *ev.DurationSeconds != 125 {
		t.Errorf("expected duration 125s derived from timestamps, got %v", ev.DurationSeconds)
	}
	if ev.Transcript == nil || *ev.Transcript != "hello there" {
		t.Errorf("transcript not carried over: %v", ev.Transcript)
	}
	if ev.Summary == nil || *ev.Summary != "customer asked for pricing" {
		t.Errorf("summary not carried over: %v", ev.Summary)
	}
	if ev.Cost == nil || *ev.Cost != 0.42 {
		t.Errorf("cost not carried over: %v", ev.Cost)
	}
	if ev.PhoneFrom == nil || *ev.PhoneFrom != "+38761123456" {
		t.Errorf("customer number not carried over: %v", ev.PhoneFrom)
	}
}

func TestParseWebhookSkewedTimestampsClampDuration(t *testing.T) {
	p := New(config.ProviderConfig{})

	payload := []byte(`{
		"message": {
			"type": "end-of-call-report",
			"call": {
				"id": "call-789",
				"status": "ended",
				"startedAt": "2025-03-01T10:02:05Z",
				"endedAt": "2025-03-01T10:00:00Z"
			}
		}
	}`)

	ev, err := p.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.DurationSeconds == nil || *ev.DurationSeconds != 0 {
		t.Errorf("expected duration clamped to 0 on skewed timestamps, got %v", ev.DurationSeconds)
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[string]domain.CallStatus{
		"queued":      domain.CallStatusInitiated,
		"scheduled":   domain.CallStatusInitiated,
		"ringing":     domain.CallStatusRinging,
		"in-progress": domain.CallStatusInProgress,
		"forwarding":  domain.CallStatusInProgress,
		"ended":       domain.CallStatusCompleted,
		"mystery":     domain.CallStatusInitiated,
	}
	for vendorStatus, want := range cases {
		if got := mapStatus(vendorStatus); got != want {
			t.Errorf("mapStatus(%q) = %q, want %q", vendorStatus, got, want)
		}
	}
}
