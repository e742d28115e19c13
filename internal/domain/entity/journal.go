package entity

import "time"

// Journal entry kinds
const (
	JournalKindSubmitted  = "SUBMITTED"
	JournalKindCorrection = "CORRECTION"
	JournalKindStep       = "STEP_RESOLVED"
	JournalKindDenied     = "DENIED"
)

// JournalEntry is an append-only audit record of something the workflow did.
// It is never read back to derive workflow state.
type JournalEntry struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	OrderNumber string    `json:"order_number"`
	OrderID     string    `json:"order_id,omitempty"`
	MessageRef  string    `json:"message_ref,omitempty"`
	Step        string    `json:"step,omitempty"`
	Outcome     string    `json:"outcome"`
	Actor       string    `json:"actor,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
