package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/refund-approval/internal/application/proration"
	"github.com/garyjia/refund-approval/internal/domain/entity"
	domainwf "github.com/garyjia/refund-approval/internal/domain/workflow"
)

func TestBuildControls_PerState(t *testing.T) {
	calc := &proration.Result{Available: true, Amount: 1900, Kind: entity.RefundKindRefund, Explanation: "95% tier, 5% fee (before season start)"}
	variants := []entity.Variant{{ID: "v1", Title: "Small"}, {ID: "v2", Title: "Large"}}
	cc := ControlContext{Ref: testRef, Calculation: calc, Variants: variants}

	pending := domainwf.NewWorkflowState()
	afterOrder := pending.With(domainwf.NotCanceled("U1"))
	afterRefund := afterOrder.With(domainwf.Refunded(1900, entity.RefundKindRefund, "U2"))
	done := afterRefund.With(domainwf.NotRestocked("U3"))
	denied := pending
	denied.Denial = &domainwf.Denial{Actor: "U4"}

	tests := []struct {
		name  string
		state domainwf.WorkflowState
		want  []string
	}{
		{"before step one", pending, []string{ActionCancelOrder, ActionProceedWithoutCancel, ActionDenyRequest}},
		{"before step two", afterOrder, []string{ActionProcessRefund, ActionCustomAmount, ActionNoRefund}},
		{"before step three", afterRefund, []string{ActionRestockVariant, ActionRestockVariant, ActionDoNotRestock}},
		{"complete", done, []string{}},
		{"denied", denied, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, actionIDs(BuildControls(tt.state, cc)))
		})
	}
}

func TestBuildControls_NoVariants(t *testing.T) {
	state := domainwf.NewWorkflowState().
		With(domainwf.Canceled("U1")).
		With(domainwf.NotRefunded("U2"))

	controls := BuildControls(state, ControlContext{Ref: testRef, Note: "No variants listed: not found"})

	assert.Equal(t, []string{ActionDoNotRestock}, actionIDs(controls))
	assert.Equal(t, "No variants listed: not found", controls[0].Hint)
}

func TestBuildControls_ZeroSuggestedAmount(t *testing.T) {
	state := domainwf.NewWorkflowState().With(domainwf.Canceled("U1"))
	calc := &proration.Result{Available: true, Amount: 0, Explanation: "0% tier, 5% fee (after week 4)"}

	controls := BuildControls(state, ControlContext{Ref: testRef, Calculation: calc})

	assert.Equal(t, []string{ActionCustomAmount, ActionNoRefund}, actionIDs(controls))
	assert.Equal(t, "Suggested amount is $0.00: 0% tier, 5% fee (after week 4)", controls[0].Hint)
}

func TestBuildControls_UnavailableSuggestion(t *testing.T) {
	state := domainwf.NewWorkflowState().With(domainwf.Canceled("U1"))
	calc := &proration.Result{Available: false, Reason: "no season start in the product description"}

	controls := BuildControls(state, ControlContext{Ref: testRef, Calculation: calc})

	assert.Equal(t, []string{ActionCustomAmount, ActionNoRefund}, actionIDs(controls))
	assert.Equal(t, "No suggested amount: no season start in the product description", controls[0].Hint)
}

func TestBuildControls_PayloadsCarryValues(t *testing.T) {
	state := domainwf.NewWorkflowState().With(domainwf.Canceled("U1"))
	calc := &proration.Result{Available: true, Amount: 1900}

	controls := BuildControls(state, ControlContext{Ref: testRef, Calculation: calc})

	decoded, err := DecodeAction(controls[0].Payload)
	assert.NoError(t, err)
	assert.Equal(t, ProcessRefund{Ref: testRef, Amount: 1900}, decoded)
}

func TestCorrectionControls(t *testing.T) {
	details := RequestDetails{OrderNumber: "1001", Email: "jo@example.com", Kind: entity.RefundKindRefund}

	controls := CorrectionControls(details, ReasonOrderNotFound)

	assert.Equal(t, []string{ActionEditDetails, ActionDenyRequest}, actionIDs(controls))
	assert.Len(t, controls[0].Inputs, 3)
}
