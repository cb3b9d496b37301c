package domain

import (
	"time"

	"github.com/google/uuid"
)

// PSPAccount is a tenant's configuration for one payment provider. The
// webhook secret may be stored encrypted at rest (enc:v1: prefix); an
// account without a secret skips signature verification, which sandbox
// tenants rely on.
type PSPAccount struct {
	ID            uuid.UUID
	TenantID      string
	Provider      Provider
	WebhookSecret *string
	Active        bool
	CreatedAt     time.Time
}

func (a *PSPAccount) HasWebhookSecret() bool {
	return a.WebhookSecret != nil && *a.WebhookSecret != ""
}
