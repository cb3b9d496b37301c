// Package provider holds one adapter per payment service provider. An
// adapter knows how to check the provider's webhook signature, split a
// delivery into individual events, and map provider vocabulary onto the
// canonical internal status space. Adapters are pure and safe for
// concurrent use.
package provider

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/coventis/psp-webhooks/internal/domain"
)

type Adapter interface {
	Name() domain.Provider

	// VerifySignature reports whether header is a valid signature over
	// rawBody under secret. Implementations must compare in constant time.
	VerifySignature(rawBody []byte, header, secret string) bool

	// ParseEvents splits one webhook delivery into its events. A parse
	// failure means the whole body is malformed; unknown event types are
	// not an error.
	ParseEvents(rawBody []byte) ([]Event, error)

	// MapStatus is total: any event, including ones the provider invented
	// after this code shipped, maps to something (UNKNOWN at worst).
	MapStatus(ev Event) Mapping
}

// Event is one provider notification in provider-neutral form. ResourceType
// and Action carry GoCardless-style events; RawStatus carries
// MultiSafepay-style transaction statuses.
type Event struct {
	ID           string
	Type         string
	ResourceType string
	Action       string
	RawStatus    string
	ReasonCode   string
	Amount       *decimal.Decimal
	Currency     string
	Payload      json.RawMessage
}

type Mapping struct {
	InternalStatus domain.InternalStatus
	EventType      domain.PaymentEventType
	RetryAdvice    domain.RetryAdvice
}
