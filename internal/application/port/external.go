package port

import (
	"context"

	"github.com/garyjia/refund-approval/internal/domain/entity"
)

// OrderService is the store's order system. Reads are idempotent and may be
// retried; mutations are performed once per operator activation.
type OrderService interface {
	FetchOrder(ctx context.Context, number string) (*entity.OrderReference, error)
	FetchOrdersByEmail(ctx context.Context, email string) ([]*entity.OrderReference, error)
	CancelOrder(ctx context.Context, orderID, reason string) error
	CreateRefundOrCredit(ctx context.Context, orderID string, amount entity.Money, kind entity.RefundKind) error
	ListRefunds(ctx context.Context, orderID string) ([]entity.RefundRecord, error)
	ListVariants(ctx context.Context, productID string) ([]entity.Variant, error)
	AdjustInventory(ctx context.Context, variantID string, delta int) error
}

// ControlStyle is a rendering hint for a control
type ControlStyle string

const (
	StyleDefault ControlStyle = "default"
	StylePrimary ControlStyle = "primary"
	StyleDanger  ControlStyle = "danger"
)

// ControlInput is a value the operator types in before activating a control
type ControlInput struct {
	Name        string
	Label       string
	Placeholder string
}

// Control is an interactive element attached to a status message. Payload is
// handed back verbatim when the control is activated.
type Control struct {
	ActionID string
	Label    string
	Payload  string
	Style    ControlStyle
	Inputs   []ControlInput
	// Hint is shown next to the control, e.g. how an amount was derived
	Hint string
}

// Trigger identifies who activated a control, and where
type Trigger struct {
	UserID     string
	ChatID     string
	MessageRef string
}

// Messenger treats a chat message as a small mutable document
type Messenger interface {
	PostMessage(ctx context.Context, destination, text string, controls []Control) (string, error)
	UpdateMessage(ctx context.Context, ref, text string, controls []Control) error
	ReadMessage(ctx context.Context, ref string) (string, error)
	SendErrorNotice(ctx context.Context, trigger Trigger, text string) error
}

// IdentityDirectory resolves chat users by email. A missing user is
// entity.ErrNotFound.
type IdentityDirectory interface {
	LookupByEmail(ctx context.Context, email string) (*entity.Identity, error)
}
