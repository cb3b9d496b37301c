package domain

// InternalStatus is the provider-agnostic status vocabulary every PSP
// webhook is mapped into.
type InternalStatus string

const (
	StatusPending           InternalStatus = "PENDING"
	StatusSubmitted         InternalStatus = "SUBMITTED"
	StatusPaid              InternalStatus = "PAID"
	StatusRejectOther       InternalStatus = "REJECT_OTHER"
	StatusRejectInsuffFunds InternalStatus = "REJECT_INSUFF_FUNDS"
	StatusCancelled         InternalStatus = "CANCELLED"
	StatusRefunded          InternalStatus = "REFUNDED"
	StatusAPIError          InternalStatus = "API_ERROR"
	StatusMandateActive     InternalStatus = "MANDATE_ACTIVE"
	StatusMandateCancelled  InternalStatus = "MANDATE_CANCELLED"
	StatusUnknown           InternalStatus = "UNKNOWN"
)

// RetryAdvice tells downstream retry tooling how a failed collection
// should be re-attempted. Not interpreted by the ingestion core.
type RetryAdvice string

const (
	RetryAuto   RetryAdvice = "AUTO"
	RetryManual RetryAdvice = "MANUAL"
	RetryNone   RetryAdvice = "NONE"
)
