package provider

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coventis/psp-webhooks/internal/domain"
	"github.com/coventis/psp-webhooks/internal/secrets"
)

// SignatureHeaderMultiSafepay carries a base64-encoded HMAC-SHA512 of the
// raw request body.
const SignatureHeaderMultiSafepay = "Auth"

type mspMapping struct {
	status domain.InternalStatus
	retry  domain.RetryAdvice
}

// Transaction status table. Keys are matched case-insensitively.
var mspStatusMap = map[string]mspMapping{
	"initialized": {domain.StatusPending, domain.RetryAuto},
	"uncleared":   {domain.StatusSubmitted, domain.RetryAuto},
	"completed":   {domain.StatusPaid, domain.RetryNone},
	"declined":    {domain.StatusRejectOther, domain.RetryManual},
	"expired":     {domain.StatusCancelled, domain.RetryManual},
	"chargeback":  {domain.StatusRejectInsuffFunds, domain.RetryAuto},
	"cancelled":   {domain.StatusCancelled, domain.RetryNone},
	"refunded":    {domain.StatusRefunded, domain.RetryNone},
	"error":       {domain.StatusAPIError, domain.RetryManual},
}

type MultiSafepay struct {
	codec *secrets.Codec
}

// NewMultiSafepay builds the adapter. codec decrypts webhook secrets that
// are stored encrypted at rest; plaintext secrets pass through unchanged.
func NewMultiSafepay(codec *secrets.Codec) *MultiSafepay {
	return &MultiSafepay{codec: codec}
}

func (m *MultiSafepay) Name() domain.Provider {
	return domain.ProviderMultiSafepay
}

func (m *MultiSafepay) VerifySignature(rawBody []byte, header, secret string) bool {
	if header == "" {
		return false
	}

	if m.codec != nil && secrets.IsEncrypted(secret) {
		plain, err := m.codec.Decrypt(secret)
		if err != nil {
			return false
		}
		secret = plain
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

type mspNotification struct {
	TransactionID string           `json:"transactionid"`
	Status        string           `json:"status"`
	Timestamp     string           `json:"timestamp"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Currency      string           `json:"currency,omitempty"`
}

// ParseEvents handles a single MultiSafepay notification object; the
// provider never batches. A notification without a transactionid cannot be
// keyed for idempotency and is treated as malformed.
func (m *MultiSafepay) ParseEvents(rawBody []byte) ([]Event, error) {
	var n mspNotification
	if err := json.Unmarshal(rawBody, &n); err != nil {
		return nil, fmt.Errorf("ParseEvents: %w", domain.ErrMalformedPayload)
	}
	if n.TransactionID == "" {
		return nil, fmt.Errorf("ParseEvents: missing transactionid: %w", domain.ErrMalformedPayload)
	}

	return []Event{{
		ID:        n.TransactionID,
		Type:      "notification",
		RawStatus: strings.ToLower(n.Status),
		Amount:    n.Amount,
		Currency:  n.Currency,
		Payload:   json.RawMessage(rawBody),
	}}, nil
}

func (m *MultiSafepay) MapStatus(ev Event) Mapping {
	mapping, ok := mspStatusMap[strings.ToLower(ev.RawStatus)]
	if !ok {
		return Mapping{domain.StatusUnknown, domain.PaymentEventTypeWebhookReceived, domain.RetryManual}
	}
	return Mapping{mapping.status, toPaymentEventType(mapping.status), mapping.retry}
}

func toPaymentEventType(status domain.InternalStatus) domain.PaymentEventType {
	switch status {
	case domain.StatusPaid:
		return domain.PaymentEventTypeSucceeded
	case domain.StatusRejectOther, domain.StatusRejectInsuffFunds, domain.StatusAPIError:
		return domain.PaymentEventTypeFailed
	case domain.StatusCancelled:
		return domain.PaymentEventTypeCancelled
	case domain.StatusRefunded:
		return domain.PaymentEventTypeRefundSucceeded
	case domain.StatusPending, domain.StatusSubmitted:
		return domain.PaymentEventTypeProcessing
	default:
		return domain.PaymentEventTypeWebhookReceived
	}
}
