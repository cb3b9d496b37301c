package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/coventis/psp-webhooks/internal/logging"
	"github.com/coventis/psp-webhooks/internal/provider"
	"github.com/coventis/psp-webhooks/internal/service"
)

const maxWebhookBody = 1 << 20

type ingestor interface {
	Ingest(ctx context.Context, tenantID string, rawBody []byte, signatureHeader string) ([]service.Result, error)
}

type WebhookHandler struct {
	gocardless   ingestor
	multisafepay ingestor
}

func NewWebhookHandler(gocardless, multisafepay ingestor) *WebhookHandler {
	return &WebhookHandler{gocardless: gocardless, multisafepay: multisafepay}
}

type webhookEventResult struct {
	PSPEventID     string `json:"psp_event_id"`
	Status         string `json:"status"`
	InternalStatus string `json:"internal_status,omitempty"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	Message        string `json:"message,omitempty"`
}

// ReceiveGoCardless handles POST /webhooks/gocardless/{companyId}.
func (h *WebhookHandler) ReceiveGoCardless(w http.ResponseWriter, r *http.Request) {
	h.receive(w, r, h.gocardless, provider.SignatureHeaderGoCardless)
}

// ReceiveMultiSafepay handles POST /webhooks/multisafepay/{companyId}.
func (h *WebhookHandler) ReceiveMultiSafepay(w http.ResponseWriter, r *http.Request) {
	h.receive(w, r, h.multisafepay, provider.SignatureHeaderMultiSafepay)
}

// receive always answers 2xx once ingestion succeeded, duplicates
// included; PSPs treat anything else as an invitation to redeliver. A
// persistence failure must therefore come back non-2xx, or the event is
// acknowledged and lost.
func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request, ing ingestor, signatureHeader string) {
	log := logging.FromContext(r.Context())

	tenantID := r.PathValue("companyId")
	if tenantID == "" {
		RespondValidationError(w, []FieldError{{Field: "companyId", Message: "required"}})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	results, err := ing.Ingest(r.Context(), tenantID, body, r.Header.Get(signatureHeader))
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	out := make([]webhookEventResult, 0, len(results))
	for _, res := range results {
		out = append(out, webhookEventResult{
			PSPEventID:     res.PSPEventID,
			Status:         string(res.Status),
			InternalStatus: string(res.InternalStatus),
			Duplicate:      res.Duplicate,
			Message:        res.Message,
		})
	}

	RespondSuccess(w, http.StatusOK, map[string]any{"events": out})
}
