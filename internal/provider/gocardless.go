package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/coventis/psp-webhooks/internal/domain"
	"github.com/coventis/psp-webhooks/internal/secrets"
)

// SignatureHeaderGoCardless carries a hex-encoded HMAC-SHA256 of the raw
// request body.
const SignatureHeaderGoCardless = "Webhook-Signature"

type GoCardless struct {
	codec *secrets.Codec
}

// NewGoCardless builds the adapter. codec decrypts webhook secrets that are
// stored encrypted at rest; plaintext secrets pass through unchanged.
func NewGoCardless(codec *secrets.Codec) *GoCardless {
	return &GoCardless{codec: codec}
}

func (g *GoCardless) Name() domain.Provider {
	return domain.ProviderGoCardless
}

func (g *GoCardless) VerifySignature(rawBody []byte, header, secret string) bool {
	if header == "" {
		return false
	}

	if g.codec != nil && secrets.IsEncrypted(secret) {
		plain, err := g.codec.Decrypt(secret)
		if err != nil {
			return false
		}
		secret = plain
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

type gcEvent struct {
	ID           string            `json:"id"`
	CreatedAt    string            `json:"created_at"`
	ResourceType string            `json:"resource_type"`
	Action       string            `json:"action"`
	Links        map[string]string `json:"links"`
	Details      struct {
		Origin      string `json:"origin"`
		Cause       string `json:"cause"`
		Description string `json:"description"`
		Scheme      string `json:"scheme,omitempty"`
		ReasonCode  string `json:"reason_code,omitempty"`
	} `json:"details"`
}

type gcPayload struct {
	Events []gcEvent `json:"events"`
}

// ParseEvents unpacks the events array GoCardless bundles into one
// delivery. Each returned event keeps its own slice of the payload so a
// failure on one does not lose the others.
func (g *GoCardless) ParseEvents(rawBody []byte) ([]Event, error) {
	var payload gcPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("ParseEvents: %w", domain.ErrMalformedPayload)
	}

	events := make([]Event, 0, len(payload.Events))
	for _, e := range payload.Events {
		raw, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("ParseEvents: re-encode event %s: %w", e.ID, err)
		}
		events = append(events, Event{
			ID:           e.ID,
			Type:         e.ResourceType + "." + e.Action,
			ResourceType: e.ResourceType,
			Action:       e.Action,
			ReasonCode:   e.Details.ReasonCode,
			Payload:      raw,
		})
	}
	return events, nil
}

func (g *GoCardless) MapStatus(ev Event) Mapping {
	switch ev.Type {
	case "payments.confirmed", "payments.paid_out":
		return Mapping{domain.StatusPaid, domain.PaymentEventTypeSucceeded, ""}

	case "payments.failed":
		status := domain.StatusRejectOther
		if ev.ReasonCode == "insufficient_funds" {
			status = domain.StatusRejectInsuffFunds
		}
		return Mapping{status, domain.PaymentEventTypeFailed, ""}

	case "payments.cancelled":
		return Mapping{domain.StatusCancelled, domain.PaymentEventTypeCancelled, ""}

	case "mandates.active":
		return Mapping{domain.StatusMandateActive, domain.PaymentEventTypeMandateActive, ""}

	case "mandates.cancelled", "mandates.failed":
		return Mapping{domain.StatusMandateCancelled, domain.PaymentEventTypeMandateCancelled, ""}

	default:
		return Mapping{domain.StatusUnknown, domain.PaymentEventTypeWebhookReceived, ""}
	}
}
