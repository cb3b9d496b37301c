package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type InboxStatus string

const (
	InboxStatusReceived  InboxStatus = "received"
	InboxStatusVerified  InboxStatus = "verified"
	InboxStatusProcessed InboxStatus = "processed"
	InboxStatusFailed    InboxStatus = "failed"
	InboxStatusRejected  InboxStatus = "rejected"
	InboxStatusDuplicate InboxStatus = "duplicate"
)

// InboxEntry is the idempotency ledger row for one provider event.
// (provider, psp_event_id) is unique; the entry is created on first sight
// of an event id and never deleted.
type InboxEntry struct {
	ID           uuid.UUID
	Provider     Provider
	PSPEventID   string
	PSPEventType string
	RawPayload   json.RawMessage
	Signature    *string
	Status       InboxStatus
	ErrorMessage *string
	ReceivedAt   time.Time
	VerifiedAt   *time.Time
	ProcessedAt  *time.Time
}

func (e *InboxEntry) MarkVerified() {
	now := time.Now().UTC()
	e.Status = InboxStatusVerified
	e.VerifiedAt = &now
}

func (e *InboxEntry) MarkProcessed() {
	now := time.Now().UTC()
	e.Status = InboxStatusProcessed
	e.ProcessedAt = &now
}

func (e *InboxEntry) MarkFailed(reason string) {
	now := time.Now().UTC()
	e.Status = InboxStatusFailed
	e.ErrorMessage = &reason
	e.ProcessedAt = &now
}

func (e *InboxEntry) MarkRejected(reason string) {
	e.Status = InboxStatusRejected
	e.ErrorMessage = &reason
}

// MarkDuplicate flags a redelivery of an already-seen event id. Valid from
// any state: the provider may resend before the first attempt finishes.
func (e *InboxEntry) MarkDuplicate() {
	e.Status = InboxStatusDuplicate
}
