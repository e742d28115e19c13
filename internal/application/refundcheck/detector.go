// Package refundcheck reports refund and credit activity already recorded
// against an order.
package refundcheck

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/application/port"
	"github.com/garyjia/refund-approval/internal/domain/entity"
)

// Summary aggregates the existing refunds of one order
type Summary struct {
	HasRefunds      bool
	TotalCount      int
	TotalAmount     entity.Money
	PendingAmount   entity.Money
	CompletedAmount entity.Money
	Records         []entity.ExistingRefundRecord
}

// Detector queries the order system for prior refunds
type Detector struct {
	orders port.OrderService
	logger *zap.Logger
}

// NewDetector creates a new detector
func NewDetector(orders port.OrderService, logger *zap.Logger) *Detector {
	return &Detector{orders: orders, logger: logger}
}

// Check lists and classifies the refunds on orderID. Any failure to reach
// the order system is returned; callers must treat it as blocking.
func (d *Detector) Check(ctx context.Context, orderID string) (*Summary, error) {
	raw, err := d.orders.ListRefunds(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds for order %s: %w", orderID, err)
	}

	summary := Summarize(raw)
	if summary.HasRefunds {
		d.logger.Info("Existing refunds found",
			zap.String("order_id", orderID),
			zap.Int("count", summary.TotalCount),
			zap.String("pending", summary.PendingAmount.String()),
			zap.String("completed", summary.CompletedAmount.String()))
	}
	return summary, nil
}

// Summarize classifies raw refund records
func Summarize(raw []entity.RefundRecord) *Summary {
	summary := &Summary{Records: make([]entity.ExistingRefundRecord, 0, len(raw))}

	for _, rec := range raw {
		classified := Classify(rec)
		summary.Records = append(summary.Records, classified)
		summary.TotalAmount += classified.Amount
		if classified.Status == entity.RefundStatusPending {
			summary.PendingAmount += classified.Amount
		} else {
			summary.CompletedAmount += classified.Amount
		}
	}

	summary.TotalCount = len(summary.Records)
	summary.HasRefunds = summary.TotalCount > 0
	return summary
}

// Classify resolves a record's amount and status. A non-zero reported
// amount is authoritative; a zero amount falls back to the sum of the
// record's transactions, ignoring failed ones.
func Classify(rec entity.RefundRecord) entity.ExistingRefundRecord {
	out := entity.ExistingRefundRecord{
		ID:        rec.ID,
		Amount:    rec.ReportedAmount,
		Status:    entity.RefundStatusCompleted,
		CreatedAt: rec.CreatedAt,
	}

	var txnTotal entity.Money
	for _, txn := range rec.Transactions {
		status := strings.ToUpper(txn.Status)
		if status == entity.TransactionStatusFailure {
			continue
		}
		if status == entity.TransactionStatusPending {
			out.Status = entity.RefundStatusPending
		}
		txnTotal += txn.Amount
	}

	if out.Amount.IsZero() {
		out.Amount = txnTotal
	}
	return out
}
