package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coventis/psp-webhooks/internal/domain"
)

const accountColumns = `id, tenant_id, provider, webhook_secret, active, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) FindActiveByTenant(ctx context.Context, provider domain.Provider, tenantID string) (*domain.PSPAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM psp_accounts
		WHERE provider = $1 AND tenant_id = $2 AND active = true`,
		provider, tenantID,
	)

	var a domain.PSPAccount
	err := row.Scan(&a.ID, &a.TenantID, &a.Provider, &a.WebhookSecret, &a.Active, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("FindActiveByTenant: %w", domain.ErrUnknownTenant)
	}
	if err != nil {
		return nil, fmt.Errorf("FindActiveByTenant: %w", err)
	}
	return &a, nil
}
