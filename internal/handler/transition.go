package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coventis/psp-webhooks/internal/lifecycle"
)

// TransitionHandler is the validation surface other services call before
// committing a payment or mandate status change. The machines are pure:
// nothing is persisted here.
type TransitionHandler struct{}

func NewTransitionHandler() *TransitionHandler {
	return &TransitionHandler{}
}

type transitionRequest struct {
	Entity   string `json:"entity"`
	EntityID string `json:"entity_id,omitempty"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type transitionResponse struct {
	Allowed      bool     `json:"allowed"`
	From         string   `json:"from"`
	To           string   `json:"to"`
	AllowedTo    []string `json:"allowed_to"`
	Terminal     bool     `json:"terminal"`
	LegacyFrom   string   `json:"legacy_from,omitempty"`
	LegacyTo     string   `json:"legacy_to,omitempty"`
	RejectReason string   `json:"reject_reason,omitempty"`
}

// ValidateTransition handles POST /internal/transitions/validate. Payment
// statuses are accepted in both the canonical uppercase and the legacy
// lowercase vocabulary.
func (h *TransitionHandler) ValidateTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	switch req.Entity {
	case "payment":
		h.validatePayment(w, req)
	case "mandate":
		h.validateMandate(w, req)
	default:
		RespondValidationError(w, []FieldError{{Field: "entity", Message: "must be payment or mandate"}})
	}
}

func (h *TransitionHandler) validatePayment(w http.ResponseWriter, req transitionRequest) {
	from, err := parsePaymentStatus(req.From)
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "from", Message: "unknown payment status"}})
		return
	}
	to, err := parsePaymentStatus(req.To)
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "to", Message: "unknown payment status"}})
		return
	}

	resp := transitionResponse{
		From:       string(from),
		To:         string(to),
		AllowedTo:  paymentTargets(from),
		Terminal:   lifecycle.IsTerminalPayment(from),
		LegacyFrom: lifecycle.ToLegacyStatus(from),
		LegacyTo:   lifecycle.ToLegacyStatus(to),
	}

	if err := lifecycle.ValidatePaymentTransition(from, to, req.EntityID); err != nil {
		var itErr *lifecycle.InvalidTransitionError
		if errors.As(err, &itErr) {
			resp.RejectReason = itErr.Error()
		}
		resp.Allowed = false
		RespondSuccess(w, http.StatusOK, resp)
		return
	}

	resp.Allowed = true
	RespondSuccess(w, http.StatusOK, resp)
}

func (h *TransitionHandler) validateMandate(w http.ResponseWriter, req transitionRequest) {
	from, ok := parseMandateStatus(req.From)
	if !ok {
		RespondValidationError(w, []FieldError{{Field: "from", Message: "unknown mandate status"}})
		return
	}
	to, ok := parseMandateStatus(req.To)
	if !ok {
		RespondValidationError(w, []FieldError{{Field: "to", Message: "unknown mandate status"}})
		return
	}

	resp := transitionResponse{
		From:      string(from),
		To:        string(to),
		AllowedTo: mandateTargets(from),
		Terminal:  lifecycle.IsTerminalMandate(from),
	}

	if err := lifecycle.ValidateMandateTransition(from, to, req.EntityID); err != nil {
		var itErr *lifecycle.InvalidTransitionError
		if errors.As(err, &itErr) {
			resp.RejectReason = itErr.Error()
		}
		resp.Allowed = false
		RespondSuccess(w, http.StatusOK, resp)
		return
	}

	resp.Allowed = true
	RespondSuccess(w, http.StatusOK, resp)
}

func parsePaymentStatus(raw string) (lifecycle.PaymentStatus, error) {
	switch lifecycle.PaymentStatus(raw) {
	case lifecycle.PaymentPending, lifecycle.PaymentSubmitted, lifecycle.PaymentPaid,
		lifecycle.PaymentRejected, lifecycle.PaymentRefunded, lifecycle.PaymentCancelled,
		lifecycle.PaymentFailed:
		return lifecycle.PaymentStatus(raw), nil
	}
	return lifecycle.FromLegacyStatus(raw)
}

func parseMandateStatus(raw string) (lifecycle.MandateStatus, bool) {
	switch lifecycle.MandateStatus(raw) {
	case lifecycle.MandatePendingCustomerApproval, lifecycle.MandatePendingSubmission,
		lifecycle.MandateSubmitted, lifecycle.MandateActive, lifecycle.MandateSuspendedByPayer,
		lifecycle.MandateFailed, lifecycle.MandateCancelled, lifecycle.MandateExpired,
		lifecycle.MandateConsumed, lifecycle.MandateBlocked:
		return lifecycle.MandateStatus(raw), true
	}
	return "", false
}

func paymentTargets(from lifecycle.PaymentStatus) []string {
	targets := lifecycle.AvailablePaymentTransitions(from)
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = string(t)
	}
	return out
}

func mandateTargets(from lifecycle.MandateStatus) []string {
	targets := lifecycle.AvailableMandateTransitions(from)
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = string(t)
	}
	return out
}
