package workflow

// Trigger represents an operator decision that resolves a step
type Trigger string

const (
	TriggerCancel      Trigger = "CANCEL"
	TriggerProceed     Trigger = "PROCEED"
	TriggerIssueRefund Trigger = "ISSUE_REFUND"
	TriggerSkipRefund  Trigger = "SKIP_REFUND"
	TriggerRestock     Trigger = "RESTOCK"
	TriggerSkipRestock Trigger = "SKIP_RESTOCK"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
