package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/application/port"
	"github.com/garyjia/refund-approval/internal/domain/entity"
	"github.com/garyjia/refund-approval/internal/domain/event"
	domainwf "github.com/garyjia/refund-approval/internal/domain/workflow"
	"github.com/garyjia/refund-approval/pkg/utils"
)

const cancelReason = "Canceled on refund request"

func parseState(text string) (domainwf.WorkflowState, error) {
	return domainwf.Parse(text)
}

func newPendingState() domainwf.WorkflowState {
	return domainwf.NewWorkflowState()
}

// handleStep resolves one step: guard, side effect, render, write back
func (e *Engine) handleStep(ctx context.Context, in Interaction, a StepAction, text string, state domainwf.WorkflowState) (*ActionOutcome, error) {
	step := a.Step()
	current := state.Decision(step)

	if current.Outcome().IsTerminal() {
		return e.alreadyProcessed(ctx, in.Trigger, a.ID(), step.String(), current.ActorID())
	}
	if prev, ok := step.Previous(); ok && !state.Decision(prev).Outcome().IsTerminal() {
		return e.reject(ctx, in.Trigger, a.ID(), step.String(),
			fmt.Sprintf("The %s decision has to be made first.", prev),
			fmt.Errorf("%w: %s before %s", domainwf.ErrInvalidTransition, step, prev))
	}

	ref := a.Target()
	var amount entity.Money
	switch v := a.(type) {
	case ProcessRefund:
		amount = v.Amount
	case CustomAmount:
		var err error
		amount, err = parseCustomAmount(in.Inputs[InputAmount], ref.TotalPaid)
		if err != nil {
			return e.reject(ctx, in.Trigger, a.ID(), step.String(), capitalize(lastSegment(err))+".", err)
		}
	}

	machine := BuildStepMachine(step, current.Outcome())
	if err := machine.Fire(withRefundAmount(ctx, amount), a.Trigger()); err != nil {
		notice := "This decision is not available right now."
		if errors.Is(err, domainwf.ErrGuardFailed) {
			notice = "The refund amount must be greater than zero."
		}
		return e.reject(ctx, in.Trigger, a.ID(), step.String(), notice, err)
	}

	if err := e.perform(ctx, a, amount); err != nil {
		return e.fail(ctx, in.Trigger, a.ID(), step.String(), describeOperation(a, amount), err)
	}

	decision := decisionFor(a, amount, in.Trigger.UserID)
	next := state.With(decision)
	newText := domainwf.Render(text, decision)
	controls := e.nextControls(ctx, next, ref)

	if err := e.messenger.UpdateMessage(ctx, in.Trigger.MessageRef, newText, controls); err != nil {
		// The side effect already happened; say so instead of inviting a retry.
		notice := fmt.Sprintf("%s succeeded, but the status message could not be updated (%s). Do not repeat it; record it as: %s",
			capitalize(describeOperation(a, amount)), summarizeError(err), domainwf.FormatLine(decision))
		e.logger.Error("Status message update failed after side effect",
			zap.String("step", step.String()),
			zap.String("message_ref", in.Trigger.MessageRef),
			zap.Error(err))
		e.notify(ctx, in.Trigger, notice)
		return &ActionOutcome{Status: OutcomeFailed, Action: a.ID(), Step: step.String(), Message: notice},
			fmt.Errorf("failed to update status message: %w", err)
	}

	e.logger.Info("Workflow step resolved",
		zap.String("order_number", ref.OrderNumber),
		zap.String("step", step.String()),
		zap.String("outcome", decision.Outcome().String()),
		zap.String("actor", in.Trigger.UserID))

	e.publish(ctx, event.TypeStepResolved, ref.OrderNumber, in.Trigger.MessageRef, map[string]interface{}{
		event.KeyOrderID:     ref.OrderID,
		event.KeyStep:        step.String(),
		event.KeyOutcome:     decision.Outcome().String(),
		event.KeyActor:       in.Trigger.UserID,
		event.KeyAmountCents: amount.Cents(),
		event.KeyDetail:      domainwf.FormatLine(decision),
	})

	return &ActionOutcome{Status: OutcomeApplied, Action: a.ID(), Step: step.String(), Message: domainwf.FormatLine(decision)}, nil
}

// perform runs the external side effect of a, once
func (e *Engine) perform(ctx context.Context, a StepAction, amount entity.Money) error {
	ref := a.Target()
	switch v := a.(type) {
	case CancelOrder:
		return e.orders.CancelOrder(ctx, ref.OrderID, cancelReason)
	case ProcessRefund, CustomAmount:
		return e.orders.CreateRefundOrCredit(ctx, ref.OrderID, amount, ref.Kind)
	case RestockVariant:
		return e.orders.AdjustInventory(ctx, v.VariantID, 1)
	}
	return nil
}

func decisionFor(a StepAction, amount entity.Money, actor string) domainwf.StepDecision {
	switch v := a.(type) {
	case CancelOrder:
		return domainwf.Canceled(actor)
	case ProceedWithoutCancel:
		return domainwf.NotCanceled(actor)
	case ProcessRefund, CustomAmount:
		return domainwf.Refunded(amount, a.Target().Kind, actor)
	case NoRefund:
		return domainwf.NotRefunded(actor)
	case RestockVariant:
		return domainwf.Restocked(v.VariantID, v.VariantTitle, actor)
	default:
		return domainwf.NotRestocked(actor)
	}
}

func describeOperation(a StepAction, amount entity.Money) string {
	ref := a.Target()
	switch v := a.(type) {
	case CancelOrder:
		return fmt.Sprintf("cancel order #%s", ref.OrderNumber)
	case ProcessRefund, CustomAmount:
		return fmt.Sprintf("issue %s %s for order #%s", amount, ref.Kind, ref.OrderNumber)
	case RestockVariant:
		title := v.VariantTitle
		if title == "" {
			title = v.VariantID
		}
		return fmt.Sprintf("restock %s", title)
	}
	return fmt.Sprintf("record %s for order #%s", a.ID(), ref.OrderNumber)
}

// nextControls derives controls for the step that follows. Lookups that
// fail degrade the controls instead of failing the already applied step.
func (e *Engine) nextControls(ctx context.Context, state domainwf.WorkflowState, ref OrderRef) []port.Control {
	step, ok := state.CurrentStep()
	if !ok {
		return nil
	}
	cc := ControlContext{Ref: ref}

	switch step {
	case domainwf.StepRefund:
		order, err := e.orders.FetchOrder(ctx, ref.OrderNumber)
		if err != nil {
			e.logger.Warn("Could not load order for proration", zap.String("order_number", ref.OrderNumber), zap.Error(err))
			cc.Note = "No suggested amount: could not load the order (" + summarizeError(err) + ")"
			break
		}
		cc.Ref.TotalPaid = order.TotalPaid
		if cc.Ref.ProductID == "" {
			cc.Ref.ProductID = order.ProductID
		}
		submitted := ref.SubmittedAt
		if submitted.IsZero() {
			submitted = e.now()
		}
		calc := e.calculator.CalculateForOrder(order, ref.Kind, submitted)
		cc.Calculation = &calc
	case domainwf.StepInventory:
		if ref.ProductID == "" {
			cc.Note = "No variants listed: the order has no product"
			break
		}
		variants, err := e.orders.ListVariants(ctx, ref.ProductID)
		if err != nil {
			e.logger.Warn("Could not load variants", zap.String("product_id", ref.ProductID), zap.Error(err))
			cc.Note = "No variants listed: " + summarizeError(err)
			break
		}
		cc.Variants = variants
	}

	return BuildControls(state, cc)
}

// handleDeny ends the request from step one or from a correction message
func (e *Engine) handleDeny(ctx context.Context, in Interaction, a DenyRequest, text string, state domainwf.WorkflowState) (*ActionOutcome, error) {
	if state.Order.Outcome().IsTerminal() {
		return e.reject(ctx, in.Trigger, a.ID(), "",
			fmt.Sprintf("The order decision was already made by %s; the request can no longer be denied.", state.Order.Actor),
			fmt.Errorf("%w: deny after order decision", domainwf.ErrInvalidTransition))
	}

	newText := domainwf.RenderDenial(text, &domainwf.Denial{Actor: in.Trigger.UserID})
	if err := e.messenger.UpdateMessage(ctx, in.Trigger.MessageRef, newText, nil); err != nil {
		return e.fail(ctx, in.Trigger, a.ID(), "", "deny the request", err)
	}

	orderNumber := entity.NormalizeOrderNumber(a.Request.OrderNumber)
	e.logger.Info("Refund request denied",
		zap.String("order_number", orderNumber),
		zap.String("actor", in.Trigger.UserID))

	payload := map[string]interface{}{
		event.KeyActor:  in.Trigger.UserID,
		event.KeyEmail:  a.Request.Email,
		event.KeyName:   strings.TrimSpace(a.Request.FirstName + " " + a.Request.LastName),
		event.KeyReason: "denied",
	}
	e.publish(ctx, event.TypeRequestDenied, orderNumber, in.Trigger.MessageRef, payload)
	e.publish(ctx, event.TypeRequestRejected, orderNumber, in.Trigger.MessageRef, payload)

	return &ActionOutcome{Status: OutcomeApplied, Action: a.ID(), Message: "denied"}, nil
}

// handleEdit re-runs the intake checks with corrected details and rewrites
// the correction message in place
func (e *Engine) handleEdit(ctx context.Context, in Interaction, a EditDetails, text string) (*ActionOutcome, error) {
	if domainwf.HasAnchor(text) {
		return e.reject(ctx, in.Trigger, a.ID(), "", "These details were already updated.",
			fmt.Errorf("%w: edit on a workflow message", domainwf.ErrInvalidTransition))
	}

	details := a.Request
	if v := strings.TrimSpace(in.Inputs[InputOrderNumber]); v != "" {
		details.OrderNumber = v
	}
	if v := strings.TrimSpace(in.Inputs[InputEmail]); v != "" {
		details.Email = v
	}
	override := isAffirmative(in.Inputs[InputOverride])

	req := details.Request()
	if err := e.validate.StructCtx(ctx, req); err != nil {
		return e.reject(ctx, in.Trigger, a.ID(), "", "The corrected details are not valid: "+utils.DescribeValidation(err)+".",
			fmt.Errorf("%w: %s", entity.ErrValidation, utils.DescribeValidation(err)))
	}

	submittedAt := req.SubmissionTime(e.now())
	ev, err := e.evaluate(ctx, req, submittedAt, override)
	if err != nil {
		return e.fail(ctx, in.Trigger, a.ID(), "", "re-check the request", err)
	}

	if err := e.messenger.UpdateMessage(ctx, in.Trigger.MessageRef, ev.text, ev.controls); err != nil {
		return e.fail(ctx, in.Trigger, a.ID(), "", "update the status message", err)
	}

	orderNumber := entity.NormalizeOrderNumber(details.OrderNumber)
	e.logger.Info("Refund request details updated",
		zap.String("order_number", orderNumber),
		zap.String("actor", in.Trigger.UserID),
		zap.Bool("override", override),
		zap.Bool("correction", ev.correction))

	payload := map[string]interface{}{
		event.KeyActor:  in.Trigger.UserID,
		event.KeyEmail:  details.Email,
		event.KeyReason: ev.reason,
	}
	if ev.order != nil {
		payload[event.KeyOrderID] = ev.order.ID
	}
	e.publish(ctx, event.TypeRequestCorrected, orderNumber, in.Trigger.MessageRef, payload)

	msg := "workflow started"
	if ev.correction {
		msg = "still needs attention: " + ev.reason
	}
	return &ActionOutcome{Status: OutcomeApplied, Action: a.ID(), Message: msg}, nil
}

func parseCustomAmount(raw string, max entity.Money) (entity.Money, error) {
	amount, err := entity.ParseMoney(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: enter an amount like 19.00", entity.ErrValidation)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: the amount must be greater than zero", entity.ErrValidation)
	}
	if max > 0 && amount > max {
		return 0, fmt.Errorf("%w: the amount cannot exceed the %s paid", entity.ErrValidation, max)
	}
	return amount, nil
}

func isAffirmative(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "y", "yes", "true", "1", "override":
		return true
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
