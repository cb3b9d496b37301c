package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coventis/psp-webhooks/internal/domain"
	"github.com/coventis/psp-webhooks/internal/provider"
)

type inboxStore interface {
	FindByKey(ctx context.Context, p domain.Provider, pspEventID string) (*domain.InboxEntry, error)
	Create(ctx context.Context, entry *domain.InboxEntry) error
	Update(ctx context.Context, entry *domain.InboxEntry) error
}

type eventStore interface {
	Create(ctx context.Context, event *domain.PaymentEvent) error
}

type accountStore interface {
	FindActiveByTenant(ctx context.Context, p domain.Provider, tenantID string) (*domain.PSPAccount, error)
}

// Ingestor runs one inbound webhook delivery through the full pipeline:
// parse, tenant lookup, signature check, idempotency, status mapping,
// audit append. One Ingestor per provider adapter; all state lives in the
// stores, so a single instance serves concurrent requests.
type Ingestor struct {
	adapter  provider.Adapter
	inbox    inboxStore
	events   eventStore
	accounts accountStore
	logger   *slog.Logger
}

func NewIngestor(adapter provider.Adapter, inbox inboxStore, events eventStore, accounts accountStore, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		adapter:  adapter,
		inbox:    inbox,
		events:   events,
		accounts: accounts,
		logger:   logger,
	}
}

// Result describes the outcome for a single provider event. One delivery
// may carry several events (GoCardless batches); each gets its own Result.
type Result struct {
	InboxID        uuid.UUID
	PSPEventID     string
	Status         domain.InboxStatus
	InternalStatus domain.InternalStatus
	Duplicate      bool
	Message        string
}

// Ingest processes rawBody for tenantID. The returned error is one of the
// hard gates (malformed payload, unknown tenant, invalid signature) or a
// persistence failure; per-event outcomes are in the results either way.
func (i *Ingestor) Ingest(ctx context.Context, tenantID string, rawBody []byte, signatureHeader string) ([]Result, error) {
	events, err := i.adapter.ParseEvents(rawBody)
	if err != nil {
		i.logger.Warn("webhook payload rejected",
			"provider", i.adapter.Name(), "tenant_id", tenantID, "error", err)
		return nil, err
	}

	account, err := i.accounts.FindActiveByTenant(ctx, i.adapter.Name(), tenantID)
	if err != nil {
		i.logger.Warn("webhook tenant lookup failed",
			"provider", i.adapter.Name(), "tenant_id", tenantID, "error", err)
		return nil, err
	}

	// No configured secret means verification is skipped. Sandbox and dev
	// tenants depend on this; do not tighten without a migration plan.
	if account.HasWebhookSecret() {
		if !i.adapter.VerifySignature(rawBody, signatureHeader, *account.WebhookSecret) {
			i.logger.Warn("webhook signature verification failed",
				"provider", i.adapter.Name(), "tenant_id", tenantID)
			i.recordRejected(ctx, events, rawBody, signatureHeader)
			return nil, domain.ErrSignatureInvalid
		}
	}

	results := make([]Result, 0, len(events))
	var errs []error
	for _, ev := range events {
		res, err := i.processEvent(ctx, tenantID, ev, signatureHeader)
		if err != nil {
			errs = append(errs, err)
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (i *Ingestor) processEvent(ctx context.Context, tenantID string, ev provider.Event, signatureHeader string) (Result, error) {
	existing, err := i.inbox.FindByKey(ctx, i.adapter.Name(), ev.ID)
	if err != nil {
		return Result{PSPEventID: ev.ID, Status: domain.InboxStatusFailed},
			fmt.Errorf("processEvent: %w", err)
	}

	if existing != nil {
		return i.resolveDuplicate(ctx, existing)
	}

	entry := newInboxEntry(i.adapter.Name(), ev, signatureHeader)
	entry.MarkVerified()

	if err := i.inbox.Create(ctx, entry); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			// Lost the insert race against a concurrent delivery of the
			// same event id; the winner owns processing.
			raced, findErr := i.inbox.FindByKey(ctx, i.adapter.Name(), ev.ID)
			if findErr != nil || raced == nil {
				return Result{PSPEventID: ev.ID, Status: domain.InboxStatusDuplicate, Duplicate: true},
					nil
			}
			return i.resolveDuplicate(ctx, raced)
		}
		return Result{PSPEventID: ev.ID, Status: domain.InboxStatusFailed},
			fmt.Errorf("processEvent: record inbox: %w", err)
	}

	mapping := i.adapter.MapStatus(ev)

	if err := i.appendAuditEvent(ctx, tenantID, ev, mapping); err != nil {
		entry.MarkFailed(err.Error())
		if updErr := i.inbox.Update(ctx, entry); updErr != nil {
			i.logger.Error("failed to mark inbox entry failed",
				"inbox_id", entry.ID, "error", updErr)
		}
		return Result{InboxID: entry.ID, PSPEventID: ev.ID, Status: domain.InboxStatusFailed, Message: err.Error()},
			fmt.Errorf("processEvent: %w", err)
	}

	entry.MarkProcessed()
	if err := i.inbox.Update(ctx, entry); err != nil {
		return Result{InboxID: entry.ID, PSPEventID: ev.ID, Status: domain.InboxStatusFailed},
			fmt.Errorf("processEvent: mark processed: %w", err)
	}

	i.logger.Info("webhook event processed",
		"provider", i.adapter.Name(),
		"tenant_id", tenantID,
		"psp_event_id", ev.ID,
		"psp_event_type", ev.Type,
		"internal_status", mapping.InternalStatus,
	)

	return Result{
		InboxID:        entry.ID,
		PSPEventID:     ev.ID,
		Status:         domain.InboxStatusProcessed,
		InternalStatus: mapping.InternalStatus,
		Message:        fmt.Sprintf("mapped %s to %s", ev.Type, mapping.InternalStatus),
	}, nil
}

// resolveDuplicate handles a redelivery of an already-recorded event id.
// The entry is flagged and the provider gets a success so it stops
// resending; nothing is re-mapped and no audit row is appended.
func (i *Ingestor) resolveDuplicate(ctx context.Context, existing *domain.InboxEntry) (Result, error) {
	i.logger.Info("duplicate webhook event",
		"provider", existing.Provider,
		"psp_event_id", existing.PSPEventID,
		"prior_status", existing.Status,
	)
	existing.MarkDuplicate()
	if err := i.inbox.Update(ctx, existing); err != nil {
		return Result{InboxID: existing.ID, PSPEventID: existing.PSPEventID, Status: domain.InboxStatusDuplicate, Duplicate: true},
			fmt.Errorf("resolveDuplicate: %w", err)
	}
	return Result{
		InboxID:    existing.ID,
		PSPEventID: existing.PSPEventID,
		Status:     domain.InboxStatusDuplicate,
		Duplicate:  true,
		Message:    "duplicate event",
	}, nil
}

// recordRejected persists forensic inbox rows for a delivery that failed
// signature verification. Best effort: rejection is already decided, and a
// duplicate key here just means the id was seen before.
func (i *Ingestor) recordRejected(ctx context.Context, events []provider.Event, rawBody []byte, signatureHeader string) {
	for _, ev := range events {
		entry := newInboxEntry(i.adapter.Name(), ev, signatureHeader)
		entry.MarkRejected("signature verification failed")
		if err := i.inbox.Create(ctx, entry); err != nil && !errors.Is(err, domain.ErrDuplicateEvent) {
			i.logger.Error("failed to record rejected webhook",
				"provider", i.adapter.Name(), "psp_event_id", ev.ID, "error", err)
		}
	}
}

type auditPayload struct {
	EventType      string           `json:"eventType"`
	ResourceType   string           `json:"resourceType,omitempty"`
	Action         string           `json:"action,omitempty"`
	RawStatus      string           `json:"rawStatus,omitempty"`
	ReasonCode     string           `json:"reasonCode,omitempty"`
	InternalStatus string           `json:"internalStatus"`
	RetryAdvice    string           `json:"retryAdvice,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Currency       string           `json:"currency,omitempty"`
}

func (i *Ingestor) appendAuditEvent(ctx context.Context, tenantID string, ev provider.Event, mapping provider.Mapping) error {
	payload, err := json.Marshal(auditPayload{
		EventType:      ev.Type,
		ResourceType:   ev.ResourceType,
		Action:         ev.Action,
		RawStatus:      ev.RawStatus,
		ReasonCode:     ev.ReasonCode,
		InternalStatus: string(mapping.InternalStatus),
		RetryAdvice:    string(mapping.RetryAdvice),
		Amount:         ev.Amount,
		Currency:       ev.Currency,
	})
	if err != nil {
		return fmt.Errorf("appendAuditEvent: encode payload: %w", err)
	}

	event := &domain.PaymentEvent{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Provider:   i.adapter.Name(),
		EventType:  mapping.EventType,
		PSPEventID: ev.ID,
		Payload:    payload,
		Processed:  true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := i.events.Create(ctx, event); err != nil {
		return fmt.Errorf("appendAuditEvent: %w", err)
	}
	return nil
}

func newInboxEntry(p domain.Provider, ev provider.Event, signatureHeader string) *domain.InboxEntry {
	var sig *string
	if signatureHeader != "" {
		sig = &signatureHeader
	}
	return &domain.InboxEntry{
		ID:           uuid.New(),
		Provider:     p,
		PSPEventID:   ev.ID,
		PSPEventType: ev.Type,
		RawPayload:   ev.Payload,
		Signature:    sig,
		Status:       domain.InboxStatusReceived,
		ReceivedAt:   time.Now().UTC(),
	}
}
