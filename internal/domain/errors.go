package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrUnknownTenant    = errors.New("no active provider account for tenant")
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrDuplicateEvent   = errors.New("provider event already recorded")
	ErrImmutableRecord  = errors.New("audit record cannot be modified")
	ErrUnknownStatus    = errors.New("unknown payment status")
)
