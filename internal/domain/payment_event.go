package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PaymentEventType string

const (
	PaymentEventTypeSucceeded        PaymentEventType = "PAYMENT_SUCCEEDED"
	PaymentEventTypeFailed           PaymentEventType = "PAYMENT_FAILED"
	PaymentEventTypeCancelled        PaymentEventType = "PAYMENT_CANCELLED"
	PaymentEventTypeProcessing       PaymentEventType = "PAYMENT_PROCESSING"
	PaymentEventTypeRefundSucceeded  PaymentEventType = "REFUND_SUCCEEDED"
	PaymentEventTypeMandateActive    PaymentEventType = "MANDATE_ACTIVE"
	PaymentEventTypeMandateCancelled PaymentEventType = "MANDATE_CANCELLED"
	PaymentEventTypeWebhookReceived  PaymentEventType = "WEBHOOK_RECEIVED"
)

// PaymentEvent is one row of the canonical audit trail. Exactly one is
// appended per successfully mapped inbox entry and it is never mutated
// afterwards; the storage layer rejects updates and deletes.
type PaymentEvent struct {
	ID         uuid.UUID
	TenantID   string
	Provider   Provider
	EventType  PaymentEventType
	PSPEventID string
	Payload    json.RawMessage
	Processed  bool
	CreatedAt  time.Time
}
