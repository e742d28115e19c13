package refundcheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/application/port"
	"github.com/garyjia/refund-approval/internal/domain/entity"
)

type stubOrders struct {
	port.OrderService
	refunds []entity.RefundRecord
	err     error
}

func (s *stubOrders) ListRefunds(ctx context.Context, orderID string) ([]entity.RefundRecord, error) {
	return s.refunds, s.err
}

func TestClassify_ZeroAggregateWithPendingTransaction(t *testing.T) {
	rec := entity.RefundRecord{
		ID:             "r1",
		ReportedAmount: 0,
		Transactions: []entity.RefundTransaction{
			{ID: "t1", Amount: 1900, Status: "pending"},
		},
	}

	got := Classify(rec)

	assert.Equal(t, entity.RefundStatusPending, got.Status)
	assert.Equal(t, entity.Money(1900), got.Amount)
}

func TestClassify_ReportedAmountIsAuthoritative(t *testing.T) {
	rec := entity.RefundRecord{
		ID:             "r1",
		ReportedAmount: 2000,
		Transactions: []entity.RefundTransaction{
			{ID: "t1", Amount: 500, Status: entity.TransactionStatusSuccess},
		},
	}

	got := Classify(rec)

	assert.Equal(t, entity.RefundStatusCompleted, got.Status)
	assert.Equal(t, entity.Money(2000), got.Amount)
}

func TestClassify_IgnoresFailedTransactions(t *testing.T) {
	rec := entity.RefundRecord{
		ID: "r1",
		Transactions: []entity.RefundTransaction{
			{ID: "t1", Amount: 1000, Status: entity.TransactionStatusFailure},
			{ID: "t2", Amount: 700, Status: entity.TransactionStatusSuccess},
		},
	}

	got := Classify(rec)

	assert.Equal(t, entity.RefundStatusCompleted, got.Status)
	assert.Equal(t, entity.Money(700), got.Amount)
}

func TestDetector_Check(t *testing.T) {
	created := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	orders := &stubOrders{refunds: []entity.RefundRecord{
		{ID: "r1", ReportedAmount: 1000, CreatedAt: created},
		{ID: "r2", Transactions: []entity.RefundTransaction{{ID: "t", Amount: 1900, Status: "PENDING"}}},
	}}

	summary, err := NewDetector(orders, zap.NewNop()).Check(context.Background(), "gid://order/1")
	require.NoError(t, err)

	assert.True(t, summary.HasRefunds)
	assert.Equal(t, 2, summary.TotalCount)
	assert.Equal(t, entity.Money(2900), summary.TotalAmount)
	assert.Equal(t, entity.Money(1900), summary.PendingAmount)
	assert.Equal(t, entity.Money(1000), summary.CompletedAmount)
	assert.Equal(t, created, summary.Records[0].CreatedAt)
}

func TestDetector_NoRefunds(t *testing.T) {
	summary, err := NewDetector(&stubOrders{}, zap.NewNop()).Check(context.Background(), "1")
	require.NoError(t, err)

	assert.False(t, summary.HasRefunds)
	assert.Zero(t, summary.TotalAmount)
}

func TestDetector_FailsClosed(t *testing.T) {
	orders := &stubOrders{err: entity.ErrUpstreamUnavailable}

	summary, err := NewDetector(orders, zap.NewNop()).Check(context.Background(), "1")

	assert.Nil(t, summary)
	assert.True(t, errors.Is(err, entity.ErrUpstreamUnavailable))
}
