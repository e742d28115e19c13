package workflow

import "github.com/garyjia/refund-approval/internal/domain/entity"

// StepDecision is the outcome of one step: one arm of the workflow state
// union. Exactly one concrete decision type exists per step.
type StepDecision interface {
	Step() Step
	Outcome() State
	ActorID() string
}

// OrderDecision is Pending, Canceled(actor) or NotCanceled(actor)
type OrderDecision struct {
	State State
	Actor string
}

// RefundDecision is Pending, Refunded(amount, kind, actor) or NotRefunded(actor)
type RefundDecision struct {
	State  State
	Actor  string
	Amount entity.Money
	Kind   entity.RefundKind
}

// InventoryDecision is Pending, Restocked(variant, actor) or NotRestocked(actor)
type InventoryDecision struct {
	State        State
	Actor        string
	VariantID    string
	VariantTitle string
}

// Denial records the terminal deny branch
type Denial struct {
	Actor string
}

func (d OrderDecision) Step() Step          { return StepOrder }
func (d OrderDecision) Outcome() State      { return orPending(d.State) }
func (d OrderDecision) ActorID() string     { return d.Actor }
func (d RefundDecision) Step() Step         { return StepRefund }
func (d RefundDecision) Outcome() State     { return orPending(d.State) }
func (d RefundDecision) ActorID() string    { return d.Actor }
func (d InventoryDecision) Step() Step      { return StepInventory }
func (d InventoryDecision) Outcome() State  { return orPending(d.State) }
func (d InventoryDecision) ActorID() string { return d.Actor }

func orPending(s State) State {
	if s == "" {
		return StatePending
	}
	return s
}

// Canceled returns the decision for an order canceled by actor
func Canceled(actor string) OrderDecision {
	return OrderDecision{State: StateCanceled, Actor: actor}
}

// NotCanceled returns the decision for an order left active by actor
func NotCanceled(actor string) OrderDecision {
	return OrderDecision{State: StateNotCanceled, Actor: actor}
}

// Refunded returns the decision for a refund or credit issued by actor
func Refunded(amount entity.Money, kind entity.RefundKind, actor string) RefundDecision {
	return RefundDecision{State: StateRefunded, Actor: actor, Amount: amount, Kind: kind}
}

// NotRefunded returns the decision for a request closed without refund
func NotRefunded(actor string) RefundDecision {
	return RefundDecision{State: StateNotRefunded, Actor: actor}
}

// Restocked returns the decision for a variant restocked by actor
func Restocked(variantID, variantTitle, actor string) InventoryDecision {
	return InventoryDecision{State: StateRestocked, Actor: actor, VariantID: variantID, VariantTitle: variantTitle}
}

// NotRestocked returns the decision for inventory left unchanged
func NotRestocked(actor string) InventoryDecision {
	return InventoryDecision{State: StateNotRestocked, Actor: actor}
}

// WorkflowState is the step triple re-derived from the status message at the
// start of every handler call. It is never stored anywhere else.
type WorkflowState struct {
	Order     OrderDecision
	Refund    RefundDecision
	Inventory InventoryDecision
	Denial    *Denial
}

// NewWorkflowState returns a state with every step pending
func NewWorkflowState() WorkflowState {
	return WorkflowState{
		Order:     OrderDecision{State: StatePending},
		Refund:    RefundDecision{State: StatePending},
		Inventory: InventoryDecision{State: StatePending},
	}
}

// Decision returns the decision recorded for step
func (s WorkflowState) Decision(step Step) StepDecision {
	switch step {
	case StepOrder:
		return s.Order
	case StepRefund:
		return s.Refund
	case StepInventory:
		return s.Inventory
	}
	return nil
}

// With returns a copy of s with d applied to its step
func (s WorkflowState) With(d StepDecision) WorkflowState {
	switch v := d.(type) {
	case OrderDecision:
		s.Order = v
	case RefundDecision:
		s.Refund = v
	case InventoryDecision:
		s.Inventory = v
	}
	return s
}

// IsDenied reports whether the request took the deny branch
func (s WorkflowState) IsDenied() bool {
	return s.Denial != nil
}

// CurrentStep returns the first undecided step. ok is false when every step
// is decided or the request was denied.
func (s WorkflowState) CurrentStep() (step Step, ok bool) {
	if s.IsDenied() {
		return "", false
	}
	for _, st := range Steps {
		if !s.Decision(st).Outcome().IsTerminal() {
			return st, true
		}
	}
	return "", false
}

// IsComplete reports whether all three steps are decided
func (s WorkflowState) IsComplete() bool {
	_, pending := s.CurrentStep()
	return !pending && !s.IsDenied()
}
