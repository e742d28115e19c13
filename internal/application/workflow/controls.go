package workflow

import (
	"fmt"

	"github.com/garyjia/refund-approval/internal/application/port"
	"github.com/garyjia/refund-approval/internal/application/proration"
	"github.com/garyjia/refund-approval/internal/domain/entity"
	domainwf "github.com/garyjia/refund-approval/internal/domain/workflow"
)

// ControlContext is the data controls embed in their payloads. Which fields
// matter depends on the step being offered.
type ControlContext struct {
	Ref         OrderRef
	Request     RequestDetails
	Calculation *proration.Result
	Variants    []entity.Variant
	// Note explains missing controls, e.g. why no suggested amount exists
	Note string
}

// BuildControls returns the controls valid for state. Denied and completed
// workflows have none.
func BuildControls(state domainwf.WorkflowState, cc ControlContext) []port.Control {
	step, ok := state.CurrentStep()
	if !ok {
		return nil
	}

	switch step {
	case domainwf.StepOrder:
		return orderControls(cc)
	case domainwf.StepRefund:
		return refundControls(cc)
	default:
		return inventoryControls(cc)
	}
}

// CorrectionControls returns the two controls of the correction branch
func CorrectionControls(details RequestDetails, reason string) []port.Control {
	return []port.Control{
		{
			ActionID: ActionEditDetails,
			Label:    "Update details",
			Payload:  EncodeAction(EditDetails{Request: details, Reason: reason}),
			Style:    port.StylePrimary,
			Inputs: []port.ControlInput{
				{Name: InputOrderNumber, Label: "Order number", Placeholder: details.OrderNumber},
				{Name: InputEmail, Label: "Requester email", Placeholder: details.Email},
				{Name: InputOverride, Label: "Proceed despite existing refunds (yes/no)", Placeholder: "no"},
			},
		},
		denyControl(details),
	}
}

func orderControls(cc ControlContext) []port.Control {
	return []port.Control{
		{
			ActionID: ActionCancelOrder,
			Label:    "Cancel order and proceed",
			Payload:  EncodeAction(CancelOrder{Ref: cc.Ref}),
			Style:    port.StylePrimary,
		},
		{
			ActionID: ActionProceedWithoutCancel,
			Label:    "Proceed without canceling",
			Payload:  EncodeAction(ProceedWithoutCancel{Ref: cc.Ref}),
			Style:    port.StyleDefault,
		},
		denyControl(cc.Request),
	}
}

func refundControls(cc ControlContext) []port.Control {
	kind := cc.Ref.Kind
	controls := make([]port.Control, 0, 3)

	if calc := cc.Calculation; calc != nil && calc.Available && calc.Amount > 0 {
		controls = append(controls, port.Control{
			ActionID: ActionProcessRefund,
			Label:    fmt.Sprintf("Issue %s %s", calc.Amount, kind),
			Payload:  EncodeAction(ProcessRefund{Ref: cc.Ref, Amount: calc.Amount}),
			Style:    port.StylePrimary,
			Hint:     calc.Explanation,
		})
	}

	custom := port.Control{
		ActionID: ActionCustomAmount,
		Label:    "Enter custom amount",
		Payload:  EncodeAction(CustomAmount{Ref: cc.Ref}),
		Style:    port.StyleDefault,
		Inputs: []port.ControlInput{
			{Name: InputAmount, Label: fmt.Sprintf("Amount (max %s)", cc.Ref.TotalPaid), Placeholder: "0.00"},
		},
	}
	// Without a positive suggestion only manual entry and closing remain
	if calc := cc.Calculation; calc != nil && !calc.Available {
		custom.Hint = "No suggested amount: " + calc.Reason
	} else if calc != nil && calc.Amount <= 0 {
		custom.Hint = "Suggested amount is " + calc.Amount.String() + ": " + calc.Explanation
	} else if cc.Note != "" && len(controls) == 0 {
		custom.Hint = cc.Note
	}

	controls = append(controls, custom, port.Control{
		ActionID: ActionNoRefund,
		Label:    fmt.Sprintf("Close without %s", kind),
		Payload:  EncodeAction(NoRefund{Ref: cc.Ref}),
		Style:    port.StyleDanger,
	})
	return controls
}

func inventoryControls(cc ControlContext) []port.Control {
	controls := make([]port.Control, 0, len(cc.Variants)+1)
	for _, v := range cc.Variants {
		controls = append(controls, port.Control{
			ActionID: ActionRestockVariant,
			Label:    fmt.Sprintf("Restock %s (%d left)", v.Title, v.InventoryQuantity),
			Payload:  EncodeAction(RestockVariant{Ref: cc.Ref, VariantID: v.ID, VariantTitle: v.Title}),
			Style:    port.StylePrimary,
		})
	}

	skip := port.Control{
		ActionID: ActionDoNotRestock,
		Label:    "Do not restock",
		Payload:  EncodeAction(DoNotRestock{Ref: cc.Ref}),
		Style:    port.StyleDefault,
	}
	if len(cc.Variants) == 0 && cc.Note != "" {
		skip.Hint = cc.Note
	}
	return append(controls, skip)
}

func denyControl(details RequestDetails) port.Control {
	return port.Control{
		ActionID: ActionDenyRequest,
		Label:    "Deny request",
		Payload:  EncodeAction(DenyRequest{Request: details}),
		Style:    port.StyleDanger,
	}
}
