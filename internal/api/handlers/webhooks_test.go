package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/voice-sales-agent/internal/domain"
	"github.com/acme/voice-sales-agent/pkg/logger"
)

type fakeProcessor struct {
	lastVendor  domain.Vendor
	lastPayload []byte
	calls       int
}

func (f *fakeProcessor) HandleWebhook(_ context.Context, vendor domain.Vendor, payload []byte) (*domain.CallSession, error) {
	f.calls++
	f.lastVendor = vendor
	f.lastPayload = payload
	return &domain.CallSession{ID: uuid.New(), Status: domain.CallStatusCompleted}, nil
}

type staticSecrets map[domain.Vendor]string

func (s staticSecrets) WebhookSecret(vendor domain.Vendor) string {
	return s[vendor]
}

func newWebhookApp(processor *fakeProcessor, secrets staticSecrets) *fiber.App {
	log := &logger.Logger{Logger: zap.NewNop()}
	app := fiber.New(fiber.Config{
		ErrorHandler: func(ctx *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fiberErr, ok := err.(*fiber.Error); ok {
				code = fiberErr.Code
			}
			return ctx.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	NewWebhookHandler(processor, secrets, log).Register(app)
	return app
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, app *fiber.App, vendor, signature string, payload []byte) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+vendor, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-"+map[string]string{
			"vapi":   "Vapi",
			"retell": "Retell",
			"bland":  "Bland",
		}[vendor]+"-Signature", signature)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestWebhookValidSignatureAccepted(t *testing.T) {
	processor := &fakeProcessor{}
	app := newWebhookApp(processor, staticSecrets{domain.VendorVapi: "topsecret"})

	payload := []byte(`{"message":{"type":"status-update","call":{"id":"c1"}}}`)
	resp := postWebhook(t, app, "vapi", sign(payload, "topsecret"), payload)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if processor.calls != 1 {
		t.Errorf("expected webhook forwarded once, got %d", processor.calls)
	}
	if processor.lastVendor != domain.VendorVapi {
		t.Errorf("wrong vendor forwarded: %q", processor.lastVendor)
	}
	if !bytes.Equal(processor.lastPayload, payload) {
		t.Errorf("raw payload must reach the processor unmodified")
	}
}

func TestWebhookTamperedBodyRejected(t *testing.T) {
	processor := &fakeProcessor{}
	app := newWebhookApp(processor, staticSecrets{domain.VendorRetell: "topsecret"})

	payload := []byte(`{"event":"call_ended"}`)
	signature := sign(payload, "topsecret")
	tampered := []byte(`{"event":"call_ended","call":{"call_id":"evil"}}`)

	resp := postWebhook(t, app, "retell", signature, tampered)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if processor.calls != 0 {
		t.Errorf("rejected payload must never reach the processor")
	}
}

func TestWebhookMissingSignatureRejected(t *testing.T) {
	processor := &fakeProcessor{}
	app := newWebhookApp(processor, staticSecrets{domain.VendorBland: "topsecret"})

	resp := postWebhook(t, app, "bland", "", []byte(`{"call_id":"c1","status":"completed"}`))

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if processor.calls != 0 {
		t.Errorf("unsigned payload must never reach the processor")
	}
}

func TestWebhookEmptySecretSkipsVerification(t *testing.T) {
	processor := &fakeProcessor{}
	app := newWebhookApp(processor, staticSecrets{})

	resp := postWebhook(t, app, "vapi", "", []byte(`{"message":{"type":"status-update","call":{"id":"c1"}}}`))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with verification disabled, got %d", resp.StatusCode)
	}
	if processor.calls != 1 {
		t.Errorf("expected webhook forwarded, got %d calls", processor.calls)
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"a":1}`)

	if err := verifySignature(payload, "", ""); err != nil {
		t.Errorf("empty secret must be permissive: %v", err)
	}
	if err := verifySignature(payload, sign(payload, "s1"), "s1"); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
	if err := verifySignature(payload, sign(payload, "s1"), "s2"); err == nil {
		t.Errorf("wrong secret must be rejected")
	}
	if err := verifySignature(payload, "deadbeef", "s1"); err == nil {
		t.Errorf("garbage signature must be rejected")
	}
}
