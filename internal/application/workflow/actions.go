package workflow

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/refund-approval/internal/domain/entity"
	domainwf "github.com/garyjia/refund-approval/internal/domain/workflow"
)

// Action identifiers carried in control payloads
const (
	ActionCancelOrder          = "cancel_order"
	ActionProceedWithoutCancel = "proceed_without_cancel"
	ActionDenyRequest          = "deny_request"
	ActionProcessRefund        = "process_refund"
	ActionCustomAmount         = "custom_refund_amount"
	ActionNoRefund             = "no_refund"
	ActionRestockVariant       = "confirm_restock"
	ActionDoNotRestock         = "do_not_restock"
	ActionEditDetails          = "edit_details"
)

// Form input names collected by controls
const (
	InputAmount      = "amount"
	InputOrderNumber = "order_number"
	InputEmail       = "email"
	InputOverride    = "override"
)

// Payload keys
const (
	keyAction       = "action"
	keyOrderID      = "orderId"
	keyOrderNumber  = "orderNumber"
	keyProductID    = "productId"
	keyKind         = "kind"
	keySubmitted    = "submitted"
	keyTotal        = "total"
	keyAmount       = "amount"
	keyVariantID    = "variantId"
	keyVariantTitle = "variantTitle"
	keyEmail        = "email"
	keyFirst        = "first"
	keyLast         = "last"
	keyNotes        = "notes"
	keyLink         = "link"
	keyReason       = "reason"
)

// Action is one operator decision decoded from a control payload
type Action interface {
	ID() string
	fields() map[string]string
}

// StepAction resolves one of the three workflow steps
type StepAction interface {
	Action
	Step() domainwf.Step
	Trigger() domainwf.Trigger
	Target() OrderRef
}

// OrderRef is what every step control carries about its order, so a step
// can run without re-reading the request from the message body
type OrderRef struct {
	OrderID     string
	OrderNumber string
	ProductID   string
	Kind        entity.RefundKind
	SubmittedAt time.Time
	TotalPaid   entity.Money
}

// RequestDetails is the original submission carried by deny and edit
// controls so that the request can be re-evaluated or the customer told
type RequestDetails struct {
	OrderNumber   string
	Email         string
	FirstName     string
	LastName      string
	Kind          entity.RefundKind
	SubmittedAt   time.Time
	Notes         string
	ReferenceLink string
}

// Request rebuilds the inbound request
func (d RequestDetails) Request() entity.RefundRequest {
	submitted := d.SubmittedAt
	return entity.RefundRequest{
		OrderNumber:    d.OrderNumber,
		RequestorName:  entity.RequestorName{First: d.FirstName, Last: d.LastName},
		RequestorEmail: d.Email,
		RefundKind:     d.Kind,
		Notes:          d.Notes,
		ReferenceLink:  d.ReferenceLink,
		SubmittedAt:    &submitted,
	}
}

// DetailsFromRequest captures req for deny and edit controls
func DetailsFromRequest(req entity.RefundRequest, submittedAt time.Time) RequestDetails {
	return RequestDetails{
		OrderNumber:   req.OrderNumber,
		Email:         req.RequestorEmail,
		FirstName:     req.RequestorName.First,
		LastName:      req.RequestorName.Last,
		Kind:          req.RefundKind,
		SubmittedAt:   submittedAt,
		Notes:         req.Notes,
		ReferenceLink: req.ReferenceLink,
	}
}

type CancelOrder struct{ Ref OrderRef }
type ProceedWithoutCancel struct{ Ref OrderRef }
type ProcessRefund struct {
	Ref    OrderRef
	Amount entity.Money
}
type CustomAmount struct{ Ref OrderRef }
type NoRefund struct{ Ref OrderRef }
type RestockVariant struct {
	Ref          OrderRef
	VariantID    string
	VariantTitle string
}
type DoNotRestock struct{ Ref OrderRef }

// DenyRequest closes the request from step one or the correction branch
type DenyRequest struct{ Request RequestDetails }

// EditDetails re-runs the intake checks with operator-corrected input
type EditDetails struct {
	Request RequestDetails
	Reason  string
}

func (CancelOrder) ID() string          { return ActionCancelOrder }
func (ProceedWithoutCancel) ID() string { return ActionProceedWithoutCancel }
func (ProcessRefund) ID() string        { return ActionProcessRefund }
func (CustomAmount) ID() string         { return ActionCustomAmount }
func (NoRefund) ID() string             { return ActionNoRefund }
func (RestockVariant) ID() string       { return ActionRestockVariant }
func (DoNotRestock) ID() string         { return ActionDoNotRestock }
func (DenyRequest) ID() string          { return ActionDenyRequest }
func (EditDetails) ID() string          { return ActionEditDetails }

func (CancelOrder) Step() domainwf.Step          { return domainwf.StepOrder }
func (ProceedWithoutCancel) Step() domainwf.Step { return domainwf.StepOrder }
func (ProcessRefund) Step() domainwf.Step        { return domainwf.StepRefund }
func (CustomAmount) Step() domainwf.Step         { return domainwf.StepRefund }
func (NoRefund) Step() domainwf.Step             { return domainwf.StepRefund }
func (RestockVariant) Step() domainwf.Step       { return domainwf.StepInventory }
func (DoNotRestock) Step() domainwf.Step         { return domainwf.StepInventory }

func (CancelOrder) Trigger() domainwf.Trigger          { return domainwf.TriggerCancel }
func (ProceedWithoutCancel) Trigger() domainwf.Trigger { return domainwf.TriggerProceed }
func (ProcessRefund) Trigger() domainwf.Trigger        { return domainwf.TriggerIssueRefund }
func (CustomAmount) Trigger() domainwf.Trigger         { return domainwf.TriggerIssueRefund }
func (NoRefund) Trigger() domainwf.Trigger             { return domainwf.TriggerSkipRefund }
func (RestockVariant) Trigger() domainwf.Trigger       { return domainwf.TriggerRestock }
func (DoNotRestock) Trigger() domainwf.Trigger         { return domainwf.TriggerSkipRestock }

func (a CancelOrder) Target() OrderRef          { return a.Ref }
func (a ProceedWithoutCancel) Target() OrderRef { return a.Ref }
func (a ProcessRefund) Target() OrderRef        { return a.Ref }
func (a CustomAmount) Target() OrderRef         { return a.Ref }
func (a NoRefund) Target() OrderRef             { return a.Ref }
func (a RestockVariant) Target() OrderRef       { return a.Ref }
func (a DoNotRestock) Target() OrderRef         { return a.Ref }

func (a CancelOrder) fields() map[string]string          { return a.Ref.fields() }
func (a ProceedWithoutCancel) fields() map[string]string { return a.Ref.fields() }
func (a CustomAmount) fields() map[string]string         { return a.Ref.fields() }
func (a NoRefund) fields() map[string]string             { return a.Ref.fields() }
func (a DoNotRestock) fields() map[string]string         { return a.Ref.fields() }

func (a ProcessRefund) fields() map[string]string {
	f := a.Ref.fields()
	f[keyAmount] = strconv.FormatInt(a.Amount.Cents(), 10)
	return f
}

func (a RestockVariant) fields() map[string]string {
	f := a.Ref.fields()
	f[keyVariantID] = a.VariantID
	f[keyVariantTitle] = a.VariantTitle
	return f
}

func (a DenyRequest) fields() map[string]string { return a.Request.fields() }

func (a EditDetails) fields() map[string]string {
	f := a.Request.fields()
	f[keyReason] = a.Reason
	return f
}

func (r OrderRef) fields() map[string]string {
	f := map[string]string{
		keyOrderID:     r.OrderID,
		keyOrderNumber: r.OrderNumber,
		keyProductID:   r.ProductID,
		keyKind:        string(r.Kind),
		keyTotal:       strconv.FormatInt(r.TotalPaid.Cents(), 10),
	}
	if !r.SubmittedAt.IsZero() {
		f[keySubmitted] = strconv.FormatInt(r.SubmittedAt.Unix(), 10)
	}
	return f
}

func (d RequestDetails) fields() map[string]string {
	f := map[string]string{
		keyOrderNumber: d.OrderNumber,
		keyEmail:       d.Email,
		keyFirst:       d.FirstName,
		keyLast:        d.LastName,
		keyKind:        string(d.Kind),
		keyNotes:       d.Notes,
		keyLink:        d.ReferenceLink,
	}
	if !d.SubmittedAt.IsZero() {
		f[keySubmitted] = strconv.FormatInt(d.SubmittedAt.Unix(), 10)
	}
	return f
}

// EncodeAction renders a as "action=<id>|key=value|..." with values query
// escaped and keys sorted. Empty values are omitted.
func EncodeAction(a Action) string {
	fields := a.fields()
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(keyAction + "=" + url.QueryEscape(a.ID()))
	for _, k := range keys {
		b.WriteString("|" + k + "=" + url.QueryEscape(fields[k]))
	}
	return b.String()
}

// DecodeAction parses a control payload into its typed action. Unknown
// actions and missing required values are entity.ErrValidation.
func DecodeAction(payload string) (Action, error) {
	fields, err := splitPayload(payload)
	if err != nil {
		return nil, err
	}
	p := payloadFields(fields)

	switch id := fields[keyAction]; id {
	case ActionCancelOrder, ActionProceedWithoutCancel, ActionCustomAmount, ActionNoRefund, ActionDoNotRestock:
		ref, err := p.orderRef()
		if err != nil {
			return nil, err
		}
		switch id {
		case ActionCancelOrder:
			return CancelOrder{Ref: ref}, nil
		case ActionProceedWithoutCancel:
			return ProceedWithoutCancel{Ref: ref}, nil
		case ActionCustomAmount:
			return CustomAmount{Ref: ref}, nil
		case ActionNoRefund:
			return NoRefund{Ref: ref}, nil
		default:
			return DoNotRestock{Ref: ref}, nil
		}
	case ActionProcessRefund:
		ref, err := p.orderRef()
		if err != nil {
			return nil, err
		}
		amount, err := p.cents(keyAmount, true)
		if err != nil {
			return nil, err
		}
		return ProcessRefund{Ref: ref, Amount: amount}, nil
	case ActionRestockVariant:
		ref, err := p.orderRef()
		if err != nil {
			return nil, err
		}
		variantID, err := p.required(keyVariantID)
		if err != nil {
			return nil, err
		}
		return RestockVariant{Ref: ref, VariantID: variantID, VariantTitle: p[keyVariantTitle]}, nil
	case ActionDenyRequest:
		details, err := p.requestDetails()
		if err != nil {
			return nil, err
		}
		return DenyRequest{Request: details}, nil
	case ActionEditDetails:
		details, err := p.requestDetails()
		if err != nil {
			return nil, err
		}
		return EditDetails{Request: details, Reason: p[keyReason]}, nil
	case "":
		return nil, fmt.Errorf("%w: payload has no action", entity.ErrValidation)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", entity.ErrValidation, id)
	}
}

func splitPayload(payload string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, part := range strings.Split(payload, "|") {
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: malformed payload segment %q", entity.ErrValidation, part)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("%w: payload value for %s: %v", entity.ErrValidation, k, err)
		}
		fields[k] = value
	}
	return fields, nil
}

type payloadFields map[string]string

func (p payloadFields) required(key string) (string, error) {
	v := strings.TrimSpace(p[key])
	if v == "" {
		return "", fmt.Errorf("%w: payload is missing %s", entity.ErrValidation, key)
	}
	return v, nil
}

func (p payloadFields) cents(key string, required bool) (entity.Money, error) {
	raw := p[key]
	if raw == "" {
		if required {
			return 0, fmt.Errorf("%w: payload is missing %s", entity.ErrValidation, key)
		}
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: payload %s is not a whole number of cents", entity.ErrValidation, key)
	}
	return entity.Money(v), nil
}

func (p payloadFields) timestamp(key string) (time.Time, error) {
	raw := p[key]
	if raw == "" {
		return time.Time{}, nil
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: payload %s is not a unix timestamp", entity.ErrValidation, key)
	}
	return time.Unix(sec, 0).UTC(), nil
}

func (p payloadFields) kind() (entity.RefundKind, error) {
	kind := entity.RefundKind(p[keyKind])
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: payload kind %q", entity.ErrValidation, p[keyKind])
	}
	return kind, nil
}

func (p payloadFields) orderRef() (OrderRef, error) {
	var ref OrderRef
	var err error
	if ref.OrderID, err = p.required(keyOrderID); err != nil {
		return ref, err
	}
	if ref.OrderNumber, err = p.required(keyOrderNumber); err != nil {
		return ref, err
	}
	if ref.Kind, err = p.kind(); err != nil {
		return ref, err
	}
	if ref.SubmittedAt, err = p.timestamp(keySubmitted); err != nil {
		return ref, err
	}
	if ref.TotalPaid, err = p.cents(keyTotal, false); err != nil {
		return ref, err
	}
	ref.ProductID = p[keyProductID]
	return ref, nil
}

func (p payloadFields) requestDetails() (RequestDetails, error) {
	var d RequestDetails
	var err error
	if d.OrderNumber, err = p.required(keyOrderNumber); err != nil {
		return d, err
	}
	if d.Email, err = p.required(keyEmail); err != nil {
		return d, err
	}
	if d.Kind, err = p.kind(); err != nil {
		return d, err
	}
	if d.SubmittedAt, err = p.timestamp(keySubmitted); err != nil {
		return d, err
	}
	d.FirstName = p[keyFirst]
	d.LastName = p[keyLast]
	d.Notes = p[keyNotes]
	d.ReferenceLink = p[keyLink]
	return d, nil
}
