package lifecycle

type MandateStatus string

const (
	MandatePendingCustomerApproval MandateStatus = "PENDING_CUSTOMER_APPROVAL"
	MandatePendingSubmission       MandateStatus = "PENDING_SUBMISSION"
	MandateSubmitted               MandateStatus = "SUBMITTED"
	MandateActive                  MandateStatus = "ACTIVE"
	MandateSuspendedByPayer        MandateStatus = "SUSPENDED_BY_PAYER"
	MandateFailed                  MandateStatus = "FAILED"
	MandateCancelled               MandateStatus = "CANCELLED"
	MandateExpired                 MandateStatus = "EXPIRED"
	MandateConsumed                MandateStatus = "CONSUMED"
	MandateBlocked                 MandateStatus = "BLOCKED"
)

// SEPA mandate lifecycle. BLOCKED and SUSPENDED_BY_PAYER are recoverable;
// FAILED, CANCELLED, EXPIRED and CONSUMED are terminal.
var mandateTransitions = map[MandateStatus][]MandateStatus{
	MandatePendingCustomerApproval: {MandatePendingSubmission, MandateFailed, MandateCancelled},
	MandatePendingSubmission:       {MandateSubmitted, MandateFailed, MandateCancelled},
	MandateSubmitted:               {MandateActive, MandateFailed, MandateCancelled},
	MandateActive:                  {MandateSuspendedByPayer, MandateCancelled, MandateExpired, MandateConsumed, MandateBlocked},
	MandateSuspendedByPayer:        {MandateActive, MandateCancelled, MandateExpired},
	MandateFailed:                  {},
	MandateCancelled:               {},
	MandateExpired:                 {},
	MandateConsumed:                {},
	MandateBlocked:                 {MandateActive, MandateCancelled},
}

func CanTransitionMandate(from, to MandateStatus) bool {
	for _, t := range mandateTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func ValidateMandateTransition(from, to MandateStatus, id string) error {
	if !CanTransitionMandate(from, to) {
		return &InvalidTransitionError{
			Entity:   "mandate",
			EntityID: id,
			From:     string(from),
			To:       string(to),
			Allowed:  mandateStatusStrings(mandateTransitions[from]),
		}
	}
	return nil
}

func AvailableMandateTransitions(from MandateStatus) []MandateStatus {
	targets := mandateTransitions[from]
	out := make([]MandateStatus, len(targets))
	copy(out, targets)
	return out
}

func IsTerminalMandate(status MandateStatus) bool {
	targets, ok := mandateTransitions[status]
	return ok && len(targets) == 0
}

func IsActiveMandate(status MandateStatus) bool {
	return status == MandateActive
}

func mandateStatusStrings(statuses []MandateStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
