package entity

import "time"

// RefundKind distinguishes a monetary refund from a store credit
type RefundKind string

const (
	RefundKindRefund RefundKind = "refund"
	RefundKindCredit RefundKind = "credit"
)

// String returns the string representation of the kind
func (k RefundKind) String() string {
	return string(k)
}

// IsValid reports whether k is a known refund kind
func (k RefundKind) IsValid() bool {
	return k == RefundKindRefund || k == RefundKindCredit
}

// Refund record status constants
const (
	RefundStatusPending   = "pending"
	RefundStatusCompleted = "completed"
)

// Transaction status values reported by the order system
const (
	TransactionStatusPending = "PENDING"
	TransactionStatusSuccess = "SUCCESS"
	TransactionStatusFailure = "FAILURE"
)

// RefundTransaction is a settlement-level entry nested under a refund
type RefundTransaction struct {
	ID     string `json:"id"`
	Amount Money  `json:"amount"`
	Status string `json:"status"`
}

// RefundRecord is a raw refund or credit as reported by the order system.
// ReportedAmount is frequently zero while transactions are unsettled.
type RefundRecord struct {
	ID             string              `json:"id"`
	ReportedAmount Money               `json:"reported_amount"`
	CreatedAt      time.Time           `json:"created_at"`
	Transactions   []RefundTransaction `json:"transactions"`
}

// ExistingRefundRecord is a classified refund, fetched live and never cached
type ExistingRefundRecord struct {
	ID        string    `json:"id"`
	Amount    Money     `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
