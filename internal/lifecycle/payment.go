// Package lifecycle validates payment and mandate status transitions.
// The machines hold no state of their own: callers load the current
// persisted status, validate the move, and only then commit it.
package lifecycle

import (
	"fmt"
	"strings"

	"github.com/coventis/psp-webhooks/internal/domain"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSubmitted PaymentStatus = "SUBMITTED"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentRejected  PaymentStatus = "REJECTED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// paymentTransitions is the full transition matrix. An empty target list
// means the status is terminal. FAILED is the only status allowed back to
// PENDING, for retries.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentSubmitted, PaymentCancelled, PaymentFailed},
	PaymentSubmitted: {PaymentPaid, PaymentRejected, PaymentCancelled, PaymentFailed},
	PaymentPaid:      {PaymentRefunded},
	PaymentRejected:  {},
	PaymentRefunded:  {},
	PaymentCancelled: {},
	PaymentFailed:    {PaymentPending},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, t := range paymentTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ValidatePaymentTransition returns *InvalidTransitionError when the move
// is not in the matrix. id is optional context for the error message.
func ValidatePaymentTransition(from, to PaymentStatus, id string) error {
	if !CanTransitionPayment(from, to) {
		return &InvalidTransitionError{
			Entity:   "payment",
			EntityID: id,
			From:     string(from),
			To:       string(to),
			Allowed:  paymentStatusStrings(paymentTransitions[from]),
		}
	}
	return nil
}

func AvailablePaymentTransitions(from PaymentStatus) []PaymentStatus {
	targets := paymentTransitions[from]
	out := make([]PaymentStatus, len(targets))
	copy(out, targets)
	return out
}

func IsTerminalPayment(status PaymentStatus) bool {
	targets, ok := paymentTransitions[status]
	return ok && len(targets) == 0
}

func IsSuccessPayment(status PaymentStatus) bool {
	return status == PaymentPaid || status == PaymentRefunded
}

func IsFailurePayment(status PaymentStatus) bool {
	return status == PaymentRejected || status == PaymentCancelled || status == PaymentFailed
}

// Legacy lowercase vocabulary still emitted by older services.
// partially_refunded collapses into REFUNDED; no partial-refund state is
// modelled.
var legacyToPayment = map[string]PaymentStatus{
	"pending":            PaymentPending,
	"processing":         PaymentSubmitted,
	"succeeded":          PaymentPaid,
	"failed":             PaymentFailed,
	"cancelled":          PaymentCancelled,
	"refunded":           PaymentRefunded,
	"partially_refunded": PaymentRefunded,
}

var paymentToLegacy = map[PaymentStatus]string{
	PaymentPending:   "pending",
	PaymentSubmitted: "processing",
	PaymentPaid:      "succeeded",
	PaymentRejected:  "failed",
	PaymentRefunded:  "refunded",
	PaymentCancelled: "cancelled",
	PaymentFailed:    "failed",
}

func FromLegacyStatus(legacy string) (PaymentStatus, error) {
	status, ok := legacyToPayment[strings.ToLower(legacy)]
	if !ok {
		return "", fmt.Errorf("FromLegacyStatus: %q: %w", legacy, domain.ErrUnknownStatus)
	}
	return status, nil
}

func ToLegacyStatus(status PaymentStatus) string {
	return paymentToLegacy[status]
}

func paymentStatusStrings(statuses []PaymentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
