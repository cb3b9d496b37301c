package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coventis/psp-webhooks/internal/domain"
)

const paymentEventColumns = `id, tenant_id, provider, event_type, psp_event_id, payload, processed, created_at`

// PaymentEventRepository appends to the canonical audit trail. The table
// is append-only: there are no update or delete methods here, and a
// trigger in the schema rejects UPDATE and DELETE outright.
type PaymentEventRepository struct {
	db *sql.DB
}

func NewPaymentEventRepository(db *sql.DB) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

func (r *PaymentEventRepository) Create(ctx context.Context, event *domain.PaymentEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_events (id, tenant_id, provider, event_type, psp_event_id, payload, processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.TenantID, event.Provider, event.EventType,
		event.PSPEventID, event.Payload, event.Processed, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentEventRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]domain.PaymentEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentEventColumns+` FROM payment_events
		WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByTenant: %w", err)
	}
	defer rows.Close()

	var events []domain.PaymentEvent
	for rows.Next() {
		e, err := scanPaymentEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByTenant: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByTenant: rows: %w", err)
	}
	return events, nil
}

func scanPaymentEvent(s scanner) (*domain.PaymentEvent, error) {
	var e domain.PaymentEvent
	err := s.Scan(
		&e.ID, &e.TenantID, &e.Provider, &e.EventType,
		&e.PSPEventID, &e.Payload, &e.Processed, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
