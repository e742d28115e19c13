package workflow

import (
	"context"

	"github.com/garyjia/refund-approval/internal/domain/entity"
	domainwf "github.com/garyjia/refund-approval/internal/domain/workflow"
)

type amountKey struct{}

// withRefundAmount attaches the amount an ISSUE_REFUND decision will send
func withRefundAmount(ctx context.Context, amount entity.Money) context.Context {
	return context.WithValue(ctx, amountKey{}, amount)
}

func refundAmountPositive(ctx context.Context) bool {
	amount, _ := ctx.Value(amountKey{}).(entity.Money)
	return amount > 0
}

// BuildStepMachine returns the transition rules of step positioned at
// current. Every step has a single pending state with two ways out; decided
// states have no outgoing transitions.
func BuildStepMachine(step domainwf.Step, current domainwf.State) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	switch step {
	case domainwf.StepOrder:
		builder.Configure(domainwf.StatePending).
			Permit(domainwf.TriggerCancel, domainwf.StateCanceled).
			Permit(domainwf.TriggerProceed, domainwf.StateNotCanceled)
	case domainwf.StepRefund:
		builder.Configure(domainwf.StatePending).
			PermitIf(domainwf.TriggerIssueRefund, domainwf.StateRefunded, refundAmountPositive).
			Permit(domainwf.TriggerSkipRefund, domainwf.StateNotRefunded)
	case domainwf.StepInventory:
		builder.Configure(domainwf.StatePending).
			Permit(domainwf.TriggerRestock, domainwf.StateRestocked).
			Permit(domainwf.TriggerSkipRestock, domainwf.StateNotRestocked)
	}

	return builder.Build(current)
}
