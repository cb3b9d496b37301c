package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coventis/psp-webhooks/internal/domain"
)

// SeedAccount inserts an active provider account for a tenant. Pass an
// empty secret for a sandbox-style account that skips verification.
func SeedAccount(t *testing.T, db *sql.DB, tenantID string, provider domain.Provider, secret string) *domain.PSPAccount {
	t.Helper()

	a := &domain.PSPAccount{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Provider:  provider,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if secret != "" {
		a.WebhookSecret = &secret
	}

	_, err := db.Exec(
		`INSERT INTO psp_accounts (id, tenant_id, provider, webhook_secret, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.TenantID, a.Provider, a.WebhookSecret, a.Active, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s/%s: %v", tenantID, provider, err)
	}
	return a
}

func GetInboxStatus(t *testing.T, db *sql.DB, provider domain.Provider, pspEventID string) domain.InboxStatus {
	t.Helper()

	var status domain.InboxStatus
	err := db.QueryRow(
		`SELECT status FROM psp_event_inbox WHERE provider = $1 AND psp_event_id = $2`,
		provider, pspEventID,
	).Scan(&status)
	if err != nil {
		t.Fatalf("get inbox status %s/%s: %v", provider, pspEventID, err)
	}
	return status
}

func CountPaymentEvents(t *testing.T, db *sql.DB, provider domain.Provider, pspEventID string) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM payment_events WHERE provider = $1 AND psp_event_id = $2`,
		provider, pspEventID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count payment events for %s/%s: %v", provider, pspEventID, err)
	}
	return count
}
