package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestSubmitted Type = "request.submitted"
	TypeRequestRejected  Type = "request.rejected"
	TypeRequestCorrected Type = "request.corrected"
	TypeStepResolved     Type = "step.resolved"
	TypeRequestDenied    Type = "request.denied"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequestSubmitted,
		TypeRequestRejected,
		TypeRequestCorrected,
		TypeStepResolved,
		TypeRequestDenied:
		return true
	default:
		return false
	}
}

// Payload keys shared by publishers and subscribers
const (
	KeyOrderID     = "order_id"
	KeyStep        = "step"
	KeyOutcome     = "outcome"
	KeyActor       = "actor"
	KeyAmountCents = "amount_cents"
	KeyReason      = "reason"
	KeyEmail       = "email"
	KeyName        = "name"
	KeyDetail      = "detail"
)
