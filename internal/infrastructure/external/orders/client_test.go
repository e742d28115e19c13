package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/domain/entity"
	"github.com/garyjia/refund-approval/internal/infrastructure/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", APIToken: "secret"}, fastRetry, zap.NewNop())
}

func TestFetchOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "1001", r.URL.Query().Get("number"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"orders":[{"id":"gid-1","number":"#1001","customer_email":"jo@example.com",
			"total_paid":"20.00","created_at":"2025-09-01T10:00:00Z",
			"product":{"id":"p1","title":"Fall League","description":"Season Start: 2025-10-05"}}]}`))
	})

	order, err := client.FetchOrder(context.Background(), "#1001")
	require.NoError(t, err)
	assert.Equal(t, "gid-1", order.ID)
	assert.Equal(t, "1001", order.Number)
	assert.Equal(t, entity.Money(2000), order.TotalPaid)
	assert.Equal(t, "p1", order.ProductID)
	assert.Equal(t, "Season Start: 2025-10-05", order.ProductDescription)
	assert.Nil(t, order.CanceledAt)
}

func TestFetchOrder_EmptyResultIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"orders":[]}`))
	})

	_, err := client.FetchOrder(context.Background(), "9999")
	assert.True(t, errors.Is(err, entity.ErrNotFound))
}

func TestRead_RetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"variants":[{"id":"v1","title":"Small","inventory_quantity":4}]}`))
	})

	variants, err := client.ListVariants(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, 4, variants[0].InventoryQuantity)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRead_GivesUpAsUnavailable(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.ListRefunds(context.Background(), "gid-1")
	assert.True(t, errors.Is(err, entity.ErrUpstreamUnavailable))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWrite_IsNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.CancelOrder(context.Background(), "gid-1", "customer request")
	assert.True(t, errors.Is(err, entity.ErrUpstreamUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateRefundOrCredit(t *testing.T) {
	var body map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders/gid-1/refunds", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
	})

	err := client.CreateRefundOrCredit(context.Background(), "gid-1", entity.Money(1900), entity.RefundKindCredit)
	require.NoError(t, err)
	assert.Equal(t, "19.00", body["amount"])
	assert.Equal(t, "credit", body["kind"])

	err = client.CreateRefundOrCredit(context.Background(), "gid-1", 0, entity.RefundKindRefund)
	assert.True(t, errors.Is(err, entity.ErrValidation))
}

func TestWrite_BusinessRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"order already canceled"}`))
	})

	err := client.CancelOrder(context.Background(), "gid-1", "x")
	assert.True(t, errors.Is(err, entity.ErrRejected))
	assert.Contains(t, err.Error(), "order already canceled")
}

func TestListRefunds(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"refunds":[{"id":"r1","amount":"0.00","created_at":"2025-09-10T10:00:00Z",
			"transactions":[{"id":"t1","amount":"19.00","status":"PENDING"}]}]}`))
	})

	refunds, err := client.ListRefunds(context.Background(), "gid-1")
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, entity.Money(0), refunds[0].ReportedAmount)
	require.Len(t, refunds[0].Transactions, 1)
	assert.Equal(t, entity.Money(1900), refunds[0].Transactions[0].Amount)
}

func TestAdjustInventory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inventory/adjust", r.URL.Path)
		var body struct {
			VariantID string `json:"variant_id"`
			Delta     int    `json:"delta"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "v1", body.VariantID)
		assert.Equal(t, 1, body.Delta)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.AdjustInventory(context.Background(), "v1", 1))
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusOK, nil},
		{http.StatusNotFound, entity.ErrNotFound},
		{http.StatusInternalServerError, entity.ErrUpstreamUnavailable},
		{http.StatusTooManyRequests, entity.ErrUpstreamUnavailable},
		{http.StatusBadRequest, entity.ErrRejected},
		{http.StatusConflict, entity.ErrRejected},
	}

	for _, tt := range tests {
		err := statusError(tt.status, nil)
		if tt.want == nil {
			assert.NoError(t, err, "status %d", tt.status)
			continue
		}
		assert.True(t, errors.Is(err, tt.want), "status %d: %v", tt.status, err)
	}
}

type failingTransport struct{ calls int32 }

func (f *failingTransport) Do(*http.Request) (*http.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	return nil, errors.New("connection refused")
}

func TestNetworkErrorIsUnavailable(t *testing.T) {
	transport := &failingTransport{}
	client := NewClient(Config{BaseURL: "http://orders.invalid"}, fastRetry, zap.NewNop(), WithHTTPClient(transport))

	_, err := client.ListVariants(context.Background(), "p1")
	assert.True(t, errors.Is(err, entity.ErrUpstreamUnavailable))
	assert.Equal(t, int32(3), atomic.LoadInt32(&transport.calls))

	err = client.CancelOrder(context.Background(), "gid-1", "requested")
	assert.True(t, errors.Is(err, entity.ErrUpstreamUnavailable))
	assert.Equal(t, int32(4), atomic.LoadInt32(&transport.calls))
}
