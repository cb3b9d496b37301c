package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coventis/psp-webhooks/internal/domain"
	"github.com/coventis/psp-webhooks/internal/logging"
)

type inboxReader interface {
	FindByKey(ctx context.Context, p domain.Provider, pspEventID string) (*domain.InboxEntry, error)
}

type eventLister interface {
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]domain.PaymentEvent, error)
}

// OpsHandler serves the authenticated internal read API used by operator
// triage and reconciliation jobs. It never exposes raw signatures or
// secrets.
type OpsHandler struct {
	inbox  inboxReader
	events eventLister
}

func NewOpsHandler(inbox inboxReader, events eventLister) *OpsHandler {
	return &OpsHandler{inbox: inbox, events: events}
}

type inboxEntryResponse struct {
	ID           string  `json:"id"`
	Provider     string  `json:"provider"`
	PSPEventID   string  `json:"psp_event_id"`
	PSPEventType string  `json:"psp_event_type"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message,omitempty"`
	ReceivedAt   string  `json:"received_at"`
	VerifiedAt   *string `json:"verified_at,omitempty"`
	ProcessedAt  *string `json:"processed_at,omitempty"`
}

// GetInboxEntry handles GET /internal/inbox/{provider}/{eventId}.
func (h *OpsHandler) GetInboxEntry(w http.ResponseWriter, r *http.Request) {
	prov := domain.Provider(r.PathValue("provider"))
	if !prov.IsValid() {
		RespondAppError(w, ErrInvalidProvider, nil)
		return
	}
	eventID := r.PathValue("eventId")

	entry, err := h.inbox.FindByKey(r.Context(), prov, eventID)
	if err != nil {
		logging.FromContext(r.Context()).Error("inbox lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	if entry == nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, inboxEntryResponse{
		ID:           entry.ID.String(),
		Provider:     string(entry.Provider),
		PSPEventID:   entry.PSPEventID,
		PSPEventType: entry.PSPEventType,
		Status:       string(entry.Status),
		ErrorMessage: entry.ErrorMessage,
		ReceivedAt:   entry.ReceivedAt.Format(time.RFC3339),
		VerifiedAt:   formatTimePtr(entry.VerifiedAt),
		ProcessedAt:  formatTimePtr(entry.ProcessedAt),
	})
}

type paymentEventResponse struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	Provider   string          `json:"provider"`
	EventType  string          `json:"event_type"`
	PSPEventID string          `json:"psp_event_id"`
	Payload    json.RawMessage `json:"payload"`
	Processed  bool            `json:"processed"`
	CreatedAt  string          `json:"created_at"`
}

// ListPaymentEvents handles GET /internal/events?tenant_id=X&limit=N.
func (h *OpsHandler) ListPaymentEvents(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		RespondValidationError(w, []FieldError{{Field: "tenant_id", Message: "required"}})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			RespondValidationError(w, []FieldError{{Field: "limit", Message: "must be between 1 and 500"}})
			return
		}
		limit = n
	}

	events, err := h.events.ListByTenant(r.Context(), tenantID, limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("event listing failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	out := make([]paymentEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, paymentEventResponse{
			ID:         e.ID.String(),
			TenantID:   e.TenantID,
			Provider:   string(e.Provider),
			EventType:  string(e.EventType),
			PSPEventID: e.PSPEventID,
			Payload:    e.Payload,
			Processed:  e.Processed,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		})
	}

	RespondSuccess(w, http.StatusOK, map[string]any{"events": out})
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
