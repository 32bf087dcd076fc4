package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/acme/voice-sales-agent/internal/domain"
)

// AgentRequest carries everything needed to provision a persona at a vendor.
type AgentRequest struct {
	Name         string
	SystemPrompt string
	Language     string
	LLMProvider  string
	LLMModel     string
	TTSProvider  string
	TTSVoiceID   string
	STTProvider  string
}

// AgentDescriptor is the vendor-side identity of a provisioned persona.
// Bland has no persistent agents; its descriptor is a serialized call config
// stored in place of an id.
type AgentDescriptor struct {
	VendorAgentID string
	Raw           []byte
}

// CallRequest carries everything needed to place one outbound call.
type CallRequest struct {
	VendorAgentID string
	PhoneNumber   string
	Language      string
	Customer      domain.Customer
}

// CallHandle identifies a freshly started vendor call.
type CallHandle struct {
	VendorCallID  string
	InitialStatus domain.CallStatus
}

// Event is the common shape every vendor payload normalizes into.
// Fields absent in a given vendor payload stay nil, never fabricated.
type Event struct {
	Vendor          domain.Vendor
	EventType       string
	VendorCallID    string
	Status          domain.CallStatus
	PhoneFrom       *string
	PhoneTo         *string
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds *int
	Transcript      *string
	Summary         *string
	Sentiment       *domain.Sentiment
	RecordingURL    *string
	Cost            *float64
}

// Terminal reports whether the event closes the call lifecycle.
func (e Event) Terminal() bool {
	return e.Status.IsTerminal()
}

// Provider adapts the generic calling contract onto one vendor's REST API.
// ParseWebhook is pure; the other operations block on vendor HTTP round
// trips bounded by the configured request timeout.
type Provider interface {
	Vendor() domain.Vendor
	CreateAgent(ctx context.Context, req AgentRequest) (AgentDescriptor, error)
	StartOutboundCall(ctx context.Context, req CallRequest) (CallHandle, error)
	GetCallStatus(ctx context.Context, vendorCallID string) (Event, error)
	ParseWebhook(payload []byte) (Event, error)
}

// Error wraps a vendor HTTP or network failure with vendor context attached.
type Error struct {
	Vendor     domain.Vendor
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: %s: http %d: %s", e.Vendor, e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Vendor, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// greetings is the fixed per-language greeting table. German is the
// fallback for unrecognized languages.
var greetings = map[string]string{
	"de": "Hallo, guten Tag! Wie kann ich Ihnen helfen?",
	"bs": "Zdravo, dobar dan! Kako vam mogu pomoći?",
	"sr": "Здраво, добар дан! Како вам могу помоћи?",
}

// Greeting returns the greeting for the language, falling back to German.
func Greeting(language string) string {
	if g, ok := greetings[language]; ok {
		return g
	}
	return greetings["de"]
}
