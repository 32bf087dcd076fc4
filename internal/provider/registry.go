package provider

import (
	"fmt"

	"github.com/acme/voice-sales-agent/internal/domain"
	apperrors "github.com/acme/voice-sales-agent/pkg/errors"
)

// Registry holds one adapter per supported vendor. The vendor set is
// closed; lookups for anything else fail with a validation error.
type Registry struct {
	providers map[domain.Vendor]Provider
	secrets   map[domain.Vendor]string
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[domain.Vendor]Provider),
		secrets:   make(map[domain.Vendor]string),
	}
}

func (r *Registry) Register(p Provider, webhookSecret string) {
	r.providers[p.Vendor()] = p
	r.secrets[p.Vendor()] = webhookSecret
}

func (r *Registry) Get(vendor domain.Vendor) (Provider, error) {
	p, ok := r.providers[vendor]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrValidation, fmt.Sprintf("unsupported vendor %q", vendor))
	}
	return p, nil
}

// WebhookSecret returns the configured HMAC secret for the vendor.
// An empty secret means signature verification is disabled.
func (r *Registry) WebhookSecret(vendor domain.Vendor) string {
	return r.secrets[vendor]
}

func (r *Registry) Vendors() []domain.Vendor {
	out := make([]domain.Vendor, 0, len(r.providers))
	for v := range r.providers {
		out = append(out, v)
	}
	return out
}
