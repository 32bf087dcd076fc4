package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/voice-sales-agent/internal/domain"
	apperrors "github.com/acme/voice-sales-agent/pkg/errors"
	"github.com/acme/voice-sales-agent/pkg/logger"
)

// signatureHeaders maps each vendor to the header carrying the HMAC
// hex digest of the raw request body.
var signatureHeaders = map[domain.Vendor]string{
	domain.VendorVapi:   "X-Vapi-Signature",
	domain.VendorRetell: "X-Retell-Signature",
	domain.VendorBland:  "X-Bland-Signature",
}

// WebhookProcessor applies a raw vendor callback to the session it
// belongs to.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, vendor domain.Vendor, payload []byte) (*domain.CallSession, error)
}

// SecretSource resolves the per-vendor webhook signing secret. An
// empty secret disables verification for that vendor.
type SecretSource interface {
	WebhookSecret(vendor domain.Vendor) string
}

// WebhookHandler receives vendor callbacks, verifies their signatures
// and forwards them into the orchestrator.
type WebhookHandler struct {
	processor WebhookProcessor
	secrets   SecretSource
	log       *logger.Logger
}

func NewWebhookHandler(processor WebhookProcessor, secrets SecretSource, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, secrets: secrets, log: log}
}

// Register wires the vendor callback routes onto the fiber app.
func (h *WebhookHandler) Register(app *fiber.App) {
	webhooks := app.Group("/webhooks")
	for _, vendor := range domain.KnownVendors {
		webhooks.Post("/"+string(vendor), h.handle(vendor))
	}
}

func (h *WebhookHandler) handle(vendor domain.Vendor) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		body := ctx.Body()
		signature := ctx.Get(signatureHeaders[vendor])

		if err := verifySignature(body, signature, h.secrets.WebhookSecret(vendor)); err != nil {
			h.log.Warn("webhook signature rejected",
				zap.String("vendor", string(vendor)),
				zap.Error(err),
			)
			return translateError(err)
		}

		session, err := h.processor.HandleWebhook(ctx.Context(), vendor, body)
		if err != nil {
			h.log.Warn("webhook processing failed",
				zap.String("vendor", string(vendor)),
				zap.Error(err),
			)
			return translateError(err)
		}

		h.log.Info("webhook applied",
			zap.String("vendor", string(vendor)),
			zap.String("session_id", session.ID.String()),
			zap.String("status", string(session.Status)),
		)
		return ctx.Status(http.StatusOK).JSON(fiber.Map{
			"status":  "ok",
			"call_id": session.ID,
		})
	}
}

// verifySignature checks the HMAC-SHA256 hex digest of the raw payload
// against the provided header value. A missing secret skips the check.
func verifySignature(payload []byte, signature, secret string) error {
	if secret == "" {
		return nil
	}
	if signature == "" {
		return apperrors.Wrap(apperrors.ErrSignature, "missing signature header")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return apperrors.Wrap(apperrors.ErrSignature, "signature mismatch")
	}
	return nil
}
