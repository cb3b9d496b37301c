package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coventis/psp-webhooks/internal/domain"
)

const inboxColumns = `id, provider, psp_event_id, psp_event_type, raw_payload,
	signature, status, error_message, received_at, verified_at, processed_at`

type InboxRepository struct {
	db *sql.DB
}

func NewInboxRepository(db *sql.DB) *InboxRepository {
	return &InboxRepository{db: db}
}

// FindByKey looks up an entry by its idempotency key. Returns (nil, nil)
// when the event has never been seen.
func (r *InboxRepository) FindByKey(ctx context.Context, provider domain.Provider, pspEventID string) (*domain.InboxEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+inboxColumns+` FROM psp_event_inbox
		WHERE provider = $1 AND psp_event_id = $2`,
		provider, pspEventID,
	)
	entry, err := scanInboxEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindByKey: %w", err)
	}
	return entry, nil
}

// Create inserts a first-sighting row. The unique index on
// (provider, psp_event_id) is the race guard: a concurrent duplicate
// delivery surfaces as domain.ErrDuplicateEvent.
func (r *InboxRepository) Create(ctx context.Context, entry *domain.InboxEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO psp_event_inbox (
			id, provider, psp_event_id, psp_event_type, raw_payload,
			signature, status, error_message, received_at, verified_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.Provider, entry.PSPEventID, entry.PSPEventType, entry.RawPayload,
		entry.Signature, entry.Status, entry.ErrorMessage, entry.ReceivedAt, entry.VerifiedAt, entry.ProcessedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("Create: %w", domain.ErrDuplicateEvent)
	}
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Update persists the mutable processing fields. Key and payload columns
// are write-once and deliberately not in the statement.
func (r *InboxRepository) Update(ctx context.Context, entry *domain.InboxEntry) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE psp_event_inbox
		SET status = $1, error_message = $2, verified_at = $3, processed_at = $4
		WHERE id = $5`,
		entry.Status, entry.ErrorMessage, entry.VerifiedAt, entry.ProcessedAt, entry.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Update: %w", domain.ErrNotFound)
	}
	return nil
}

func scanInboxEntry(s scanner) (*domain.InboxEntry, error) {
	var e domain.InboxEntry
	err := s.Scan(
		&e.ID, &e.Provider, &e.PSPEventID, &e.PSPEventType, &e.RawPayload,
		&e.Signature, &e.Status, &e.ErrorMessage, &e.ReceivedAt, &e.VerifiedAt, &e.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
