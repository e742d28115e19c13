package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/domain/entity"
	"github.com/garyjia/refund-approval/internal/infrastructure/retry"
)

// HTTPClient interface for testability
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds order API configuration
type Config struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// Client implements port.OrderService against the store's order API
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPClient
	policy     retry.Policy
	logger     *zap.Logger
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// NewClient creates a new order API client. Reads are retried with policy.
func NewClient(cfg Config, policy retry.Policy, logger *zap.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.APIToken,
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchOrder looks an order up by its human-facing number
func (c *Client) FetchOrder(ctx context.Context, number string) (*entity.OrderReference, error) {
	number = entity.NormalizeOrderNumber(number)
	q := url.Values{"number": {number}}

	var resp ordersResponse
	if err := c.read(ctx, "/orders?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", number, err)
	}
	if len(resp.Orders) == 0 {
		return nil, fmt.Errorf("order %s: %w", number, entity.ErrNotFound)
	}
	return resp.Orders[0].toEntity()
}

// FetchOrdersByEmail lists a customer's orders
func (c *Client) FetchOrdersByEmail(ctx context.Context, email string) ([]*entity.OrderReference, error) {
	q := url.Values{"email": {strings.TrimSpace(email)}}

	var resp ordersResponse
	if err := c.read(ctx, "/orders?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetch orders for %s: %w", email, err)
	}

	out := make([]*entity.OrderReference, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		ref, err := o.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, nil
}

// CancelOrder cancels an order without refunding or restocking it
func (c *Client) CancelOrder(ctx context.Context, orderID, reason string) error {
	body := map[string]interface{}{
		"reason":  reason,
		"refund":  false,
		"restock": false,
	}
	if err := c.write(ctx, "/orders/"+url.PathEscape(orderID)+"/cancel", body); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	c.logger.Info("Order canceled", zap.String("order_id", orderID))
	return nil
}

// CreateRefundOrCredit issues money back, either to the original payment
// method or as store credit
func (c *Client) CreateRefundOrCredit(ctx context.Context, orderID string, amount entity.Money, kind entity.RefundKind) error {
	if amount <= 0 {
		return fmt.Errorf("%w: refund amount must be positive", entity.ErrValidation)
	}
	body := map[string]interface{}{
		"amount": amount.Decimal(),
		"kind":   kind.String(),
		"notify": true,
	}
	if err := c.write(ctx, "/orders/"+url.PathEscape(orderID)+"/refunds", body); err != nil {
		return fmt.Errorf("create %s for order %s: %w", kind, orderID, err)
	}
	c.logger.Info("Refund created",
		zap.String("order_id", orderID),
		zap.String("kind", kind.String()),
		zap.String("amount", amount.Decimal()))
	return nil
}

// ListRefunds returns the order's refunds as reported, unclassified
func (c *Client) ListRefunds(ctx context.Context, orderID string) ([]entity.RefundRecord, error) {
	var resp refundsResponse
	if err := c.read(ctx, "/orders/"+url.PathEscape(orderID)+"/refunds", &resp); err != nil {
		return nil, fmt.Errorf("list refunds for order %s: %w", orderID, err)
	}

	out := make([]entity.RefundRecord, 0, len(resp.Refunds))
	for _, r := range resp.Refunds {
		rec, err := r.toEntity()
		if err != nil {
			return nil, fmt.Errorf("list refunds for order %s: %w", orderID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ListVariants returns a product's variants with current inventory
func (c *Client) ListVariants(ctx context.Context, productID string) ([]entity.Variant, error) {
	var resp variantsResponse
	if err := c.read(ctx, "/products/"+url.PathEscape(productID)+"/variants", &resp); err != nil {
		return nil, fmt.Errorf("list variants for product %s: %w", productID, err)
	}
	return resp.Variants, nil
}

// AdjustInventory changes a variant's available quantity by delta
func (c *Client) AdjustInventory(ctx context.Context, variantID string, delta int) error {
	body := map[string]interface{}{
		"variant_id": variantID,
		"delta":      delta,
	}
	if err := c.write(ctx, "/inventory/adjust", body); err != nil {
		return fmt.Errorf("adjust inventory of %s: %w", variantID, err)
	}
	c.logger.Info("Inventory adjusted", zap.String("variant_id", variantID), zap.Int("delta", delta))
	return nil
}

// read performs an idempotent GET, retrying transient failures
func (c *Client) read(ctx context.Context, path string, out interface{}) error {
	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	}, isTransient)
}

// write performs a mutating POST exactly once
func (c *Client) write(ctx context.Context, path string, body interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Warn("Order API request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%w: %v", entity.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", entity.ErrUpstreamUnavailable, err)
	}

	if err := statusError(resp.StatusCode, respBody); err != nil {
		c.logger.Warn("Order API returned error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// statusError maps an HTTP status to the error taxonomy
func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := errorMessage(body)
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", entity.ErrNotFound, msg)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return fmt.Errorf("%w: status %d: %s", entity.ErrUpstreamUnavailable, status, msg)
	}
	return fmt.Errorf("%w: status %d: %s", entity.ErrRejected, status, msg)
}

func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func isTransient(err error) bool {
	return errors.Is(err, entity.ErrUpstreamUnavailable)
}
