// Package workflow drives refund requests through the three operator
// decisions: order, refund and inventory. The only durable state is the
// status message itself; every action re-reads it, applies one decision and
// writes it back.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/application/dedup"
	"github.com/garyjia/refund-approval/internal/application/dispatcher"
	"github.com/garyjia/refund-approval/internal/application/port"
	"github.com/garyjia/refund-approval/internal/application/proration"
	"github.com/garyjia/refund-approval/internal/application/refundcheck"
	"github.com/garyjia/refund-approval/internal/domain/entity"
	"github.com/garyjia/refund-approval/internal/domain/event"
	domainwf "github.com/garyjia/refund-approval/internal/domain/workflow"
	"github.com/garyjia/refund-approval/pkg/utils"
)

// RequesterLookup resolves the chat user behind a requester email
type RequesterLookup interface {
	Lookup(ctx context.Context, email string) (*entity.Identity, error)
}

// Interaction is one activation of a control
type Interaction struct {
	Trigger port.Trigger
	Payload string
	Inputs  map[string]string
}

// Outcome statuses
const (
	OutcomeApplied          = "applied"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeRejected         = "rejected"
	OutcomeFailed           = "failed"
)

// ActionOutcome describes what an interaction did
type ActionOutcome struct {
	Status  string
	Action  string
	Step    string
	Message string
}

// SubmitResult describes where a submission ended up
type SubmitResult struct {
	MessageRef  string
	OrderNumber string
	Correction  bool
	Reason      string
}

// Engine is the approval workflow engine
type Engine struct {
	orders     port.OrderService
	messenger  port.Messenger
	detector   *refundcheck.Detector
	calculator *proration.Calculator
	dedup      *dedup.Cache
	channelID  string
	logger     *zap.Logger

	dispatcher dispatcher.Dispatcher
	requesters RequesterLookup
	validate   *validator.Validate
	now        func() time.Time
}

// EngineOption configures the engine
type EngineOption func(*Engine)

// WithDispatcher sets the dispatcher workflow events are published on
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithRequesterLookup tags requesters with their chat identity
func WithRequesterLookup(l RequesterLookup) EngineOption {
	return func(e *Engine) {
		e.requesters = l
	}
}

// WithValidator replaces the request validator
func WithValidator(v *validator.Validate) EngineOption {
	return func(e *Engine) {
		e.validate = v
	}
}

// WithClock sets the engine clock (for testing)
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine posting to channelID
func NewEngine(
	orders port.OrderService,
	messenger port.Messenger,
	detector *refundcheck.Detector,
	calculator *proration.Calculator,
	cache *dedup.Cache,
	channelID string,
	logger *zap.Logger,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		orders:     orders,
		messenger:  messenger,
		detector:   detector,
		calculator: calculator,
		dedup:      cache,
		channelID:  channelID,
		logger:     logger,
		validate:   utils.NewValidator(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// evaluation is the result of running the intake checks on a request
type evaluation struct {
	text       string
	controls   []port.Control
	order      *entity.OrderReference
	summary    *refundcheck.Summary
	correction bool
	reason     string
}

// Submit validates a request, suppresses repeats, runs the order checks and
// posts the status message. Requests failing a check are posted as a
// correction message instead; that is not an error.
func (e *Engine) Submit(ctx context.Context, req entity.RefundRequest) (*SubmitResult, error) {
	if err := e.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrValidation, utils.DescribeValidation(err))
	}

	key := dedup.Key(req.OrderNumber, req.RequestorEmail, req.RefundKind)
	if e.dedup.CheckAndInsert(key) {
		e.logger.Info("Duplicate submission suppressed",
			zap.String("order_number", req.OrderNumber),
			zap.String("kind", req.RefundKind.String()))
		return nil, fmt.Errorf("%w: order %s", entity.ErrDuplicateSubmission, req.OrderNumber)
	}

	submittedAt := req.SubmissionTime(e.now())
	ev, err := e.evaluate(ctx, req, submittedAt, false)
	if err != nil {
		// Transient failures must not suppress the caller's retry.
		e.dedup.Forget(key)
		return nil, err
	}

	ref, err := e.messenger.PostMessage(ctx, e.channelID, ev.text, ev.controls)
	if err != nil {
		e.dedup.Forget(key)
		return nil, fmt.Errorf("failed to post status message: %w", err)
	}

	result := &SubmitResult{
		MessageRef:  ref,
		OrderNumber: entity.NormalizeOrderNumber(req.OrderNumber),
		Correction:  ev.correction,
		Reason:      ev.reason,
	}

	e.logger.Info("Refund request posted",
		zap.String("order_number", result.OrderNumber),
		zap.String("message_ref", ref),
		zap.Bool("correction", ev.correction),
		zap.String("reason", ev.reason))

	payload := map[string]interface{}{
		event.KeyEmail:  req.RequestorEmail,
		event.KeyName:   req.RequestorName.Full(),
		event.KeyReason: ev.reason,
	}
	if ev.order != nil {
		payload[event.KeyOrderID] = ev.order.ID
	}
	e.publish(ctx, event.TypeRequestSubmitted, result.OrderNumber, ref, payload)
	if ev.correction {
		e.publish(ctx, event.TypeRequestRejected, result.OrderNumber, ref, payload)
	}

	return result, nil
}

// evaluate runs the order lookup, email match and duplicate-refund checks
// and composes the resulting message. Errors are transient failures only;
// check failures produce a correction message.
func (e *Engine) evaluate(ctx context.Context, req entity.RefundRequest, submittedAt time.Time, allowExistingRefunds bool) (*evaluation, error) {
	details := DetailsFromRequest(req, submittedAt)
	loc := e.calculator.Location()

	correct := func(reason string, order *entity.OrderReference, summary *refundcheck.Summary, candidates []*entity.OrderReference) *evaluation {
		return &evaluation{
			text:       composeCorrectionMessage(req, reason, order, summary, candidates, submittedAt, loc),
			controls:   CorrectionControls(details, reason),
			order:      order,
			summary:    summary,
			correction: true,
			reason:     reason,
		}
	}

	order, err := e.orders.FetchOrder(ctx, req.NormalizedOrderNumber())
	if errors.Is(err, entity.ErrNotFound) {
		return correct(ReasonOrderNotFound, nil, nil, e.ordersByEmail(ctx, req.RequestorEmail)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order %s: %w", req.OrderNumber, err)
	}

	if !entity.EmailsMatch(order.CustomerEmail, req.RequestorEmail) {
		return correct(ReasonEmailMismatch, order, nil, nil), nil
	}

	summary, err := e.detector.Check(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if summary.HasRefunds && !allowExistingRefunds {
		return correct(ReasonDuplicateRefund, order, summary, nil), nil
	}

	var requester *entity.Identity
	if e.requesters != nil {
		requester, err = e.requesters.Lookup(ctx, req.RequestorEmail)
		if err != nil && !errors.Is(err, entity.ErrNotFound) {
			e.logger.Warn("Requester lookup failed", zap.String("email", req.RequestorEmail), zap.Error(err))
		}
	}

	cc := ControlContext{
		Ref: OrderRef{
			OrderID:     order.ID,
			OrderNumber: order.Number,
			ProductID:   order.ProductID,
			Kind:        req.RefundKind,
			SubmittedAt: submittedAt,
			TotalPaid:   order.TotalPaid,
		},
		Request: details,
	}
	state := newPendingState()

	return &evaluation{
		text:     composeWorkflowMessage(req, order, submittedAt, requester, loc),
		controls: BuildControls(state, cc),
		order:    order,
		summary:  summary,
	}, nil
}

// ordersByEmail finds the requester's orders so the operator can pick the
// right number. The result only annotates a correction message, so a failed
// lookup is logged and yields nothing.
func (e *Engine) ordersByEmail(ctx context.Context, email string) []*entity.OrderReference {
	orders, err := e.orders.FetchOrdersByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, entity.ErrNotFound) {
			e.logger.Warn("Order lookup by email failed", zap.String("email", email), zap.Error(err))
		}
		return nil
	}

	out := make([]*entity.OrderReference, 0, len(orders))
	for _, o := range orders {
		if entity.EmailsMatch(o.CustomerEmail, email) {
			out = append(out, o)
		}
	}
	return out
}

// HandleAction applies one control activation. A non-nil error means the
// action was not applied; the operator has already been sent a notice
// explaining why.
func (e *Engine) HandleAction(ctx context.Context, in Interaction) (*ActionOutcome, error) {
	action, err := DecodeAction(in.Payload)
	if err != nil {
		return e.reject(ctx, in.Trigger, "", "", "This control is no longer valid.", err)
	}

	if !domainwf.ValidActor(in.Trigger.UserID) {
		return e.reject(ctx, in.Trigger, action.ID(), "", "Your chat user could not be identified; no changes were made.",
			fmt.Errorf("%w: unusable actor id %q", entity.ErrValidation, in.Trigger.UserID))
	}

	logger := e.logger.With(
		zap.String("action", action.ID()),
		zap.String("message_ref", in.Trigger.MessageRef),
		zap.String("actor", in.Trigger.UserID))
	logger.Info("Handling workflow action")

	text, err := e.messenger.ReadMessage(ctx, in.Trigger.MessageRef)
	if err != nil {
		return e.fail(ctx, in.Trigger, action.ID(), "", "read the status message", err)
	}

	state, err := parseState(text)
	if err != nil {
		return e.reject(ctx, in.Trigger, action.ID(), "",
			"The status message could not be read; no changes were made.", err)
	}
	if state.IsDenied() {
		return e.alreadyProcessed(ctx, in.Trigger, action.ID(), "", state.Denial.Actor)
	}

	switch a := action.(type) {
	case StepAction:
		return e.handleStep(ctx, in, a, text, state)
	case DenyRequest:
		return e.handleDeny(ctx, in, a, text, state)
	case EditDetails:
		return e.handleEdit(ctx, in, a, text)
	}
	return e.reject(ctx, in.Trigger, action.ID(), "", "This control is not supported.",
		fmt.Errorf("%w: unhandled action %s", entity.ErrValidation, action.ID()))
}

// publish dispatches asynchronously when a dispatcher is configured
func (e *Engine) publish(ctx context.Context, t event.Type, orderNumber, messageRef string, payload map[string]interface{}) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.DispatchAsync(ctx, event.NewEvent(t, orderNumber, messageRef, payload))
}

// notify sends an ephemeral notice; failure to notify is only logged
func (e *Engine) notify(ctx context.Context, trigger port.Trigger, text string) {
	if err := e.messenger.SendErrorNotice(ctx, trigger, text); err != nil {
		e.logger.Error("Failed to send error notice",
			zap.String("user_id", trigger.UserID),
			zap.String("message_ref", trigger.MessageRef),
			zap.Error(err))
	}
}

func (e *Engine) reject(ctx context.Context, trigger port.Trigger, action, step, notice string, cause error) (*ActionOutcome, error) {
	e.logger.Warn("Workflow action rejected",
		zap.String("action", action),
		zap.String("step", step),
		zap.String("message_ref", trigger.MessageRef),
		zap.Error(cause))
	e.notify(ctx, trigger, notice)
	return &ActionOutcome{Status: OutcomeRejected, Action: action, Step: step, Message: notice}, cause
}

// fail reports a failed external operation. The message is left as it was
// so the same controls can be used to retry.
func (e *Engine) fail(ctx context.Context, trigger port.Trigger, action, step, operation string, cause error) (*ActionOutcome, error) {
	notice := fmt.Sprintf("Failed to %s: %s. Nothing was changed; you can try again.", operation, summarizeError(cause))
	e.logger.Error("Workflow action failed",
		zap.String("action", action),
		zap.String("step", step),
		zap.String("operation", operation),
		zap.String("message_ref", trigger.MessageRef),
		zap.Error(cause))
	e.notify(ctx, trigger, notice)
	return &ActionOutcome{Status: OutcomeFailed, Action: action, Step: step, Message: notice},
		fmt.Errorf("failed to %s: %w", operation, cause)
}

func (e *Engine) alreadyProcessed(ctx context.Context, trigger port.Trigger, action, step, actor string) (*ActionOutcome, error) {
	notice := fmt.Sprintf("already processed by %s", actor)
	e.logger.Info("Workflow action ignored",
		zap.String("action", action),
		zap.String("step", step),
		zap.String("message_ref", trigger.MessageRef),
		zap.String("processed_by", actor))
	e.notify(ctx, trigger, notice)
	return &ActionOutcome{Status: OutcomeAlreadyProcessed, Action: action, Step: step, Message: notice}, nil
}

func summarizeError(err error) string {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return "not found"
	case errors.Is(err, entity.ErrUpstreamUnavailable):
		return "the order system is unavailable"
	case errors.Is(err, entity.ErrRejected):
		return "the order system rejected the request (" + lastSegment(err) + ")"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	}
	return lastSegment(err)
}

func lastSegment(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}
