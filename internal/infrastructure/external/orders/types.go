package orders

import (
	"fmt"
	"time"

	"github.com/garyjia/refund-approval/internal/domain/entity"
)

// Amounts travel as decimal strings, e.g. "19.00"

type ordersResponse struct {
	Orders []orderDTO `json:"orders"`
}

type orderDTO struct {
	ID            string     `json:"id"`
	Number        string     `json:"number"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	TotalPaid     string     `json:"total_paid"`
	CreatedAt     time.Time  `json:"created_at"`
	CanceledAt    *time.Time `json:"canceled_at"`
	Product       struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"product"`
}

func (o orderDTO) toEntity() (*entity.OrderReference, error) {
	total, err := parseAmount(o.TotalPaid)
	if err != nil {
		return nil, fmt.Errorf("order %s total: %w", o.Number, err)
	}
	return &entity.OrderReference{
		ID:                 o.ID,
		Number:             entity.NormalizeOrderNumber(o.Number),
		CustomerName:       o.CustomerName,
		CustomerEmail:      o.CustomerEmail,
		TotalPaid:          total,
		ProductID:          o.Product.ID,
		ProductTitle:       o.Product.Title,
		ProductDescription: o.Product.Description,
		CreatedAt:          o.CreatedAt,
		CanceledAt:         o.CanceledAt,
	}, nil
}

type refundsResponse struct {
	Refunds []refundDTO `json:"refunds"`
}

type refundDTO struct {
	ID           string    `json:"id"`
	Amount       string    `json:"amount"`
	CreatedAt    time.Time `json:"created_at"`
	Transactions []struct {
		ID     string `json:"id"`
		Amount string `json:"amount"`
		Status string `json:"status"`
	} `json:"transactions"`
}

func (r refundDTO) toEntity() (entity.RefundRecord, error) {
	reported, err := parseAmount(r.Amount)
	if err != nil {
		return entity.RefundRecord{}, fmt.Errorf("refund %s amount: %w", r.ID, err)
	}
	rec := entity.RefundRecord{
		ID:             r.ID,
		ReportedAmount: reported,
		CreatedAt:      r.CreatedAt,
	}
	for _, t := range r.Transactions {
		amount, err := parseAmount(t.Amount)
		if err != nil {
			return entity.RefundRecord{}, fmt.Errorf("refund %s transaction %s: %w", r.ID, t.ID, err)
		}
		rec.Transactions = append(rec.Transactions, entity.RefundTransaction{
			ID:     t.ID,
			Amount: amount,
			Status: t.Status,
		})
	}
	return rec, nil
}

type variantsResponse struct {
	Variants []entity.Variant `json:"variants"`
}

// parseAmount treats a missing amount as zero
func parseAmount(s string) (entity.Money, error) {
	if s == "" {
		return 0, nil
	}
	return entity.ParseMoney(s)
}
