package entity

import "time"

// OrderReference is the order as fetched from the order system for a single
// operation. It is never cached across workflow steps.
type OrderReference struct {
	ID                 string     `json:"id"`
	Number             string     `json:"number"`
	CustomerName       string     `json:"customer_name"`
	CustomerEmail      string     `json:"customer_email"`
	TotalPaid          Money      `json:"total_paid"`
	ProductID          string     `json:"product_id"`
	ProductTitle       string     `json:"product_title"`
	ProductDescription string     `json:"product_description"`
	CreatedAt          time.Time  `json:"created_at"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
}

// Variant is a purchasable option of a product with its own inventory
type Variant struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

// Identity is a chat user resolved from an email address
type Identity struct {
	Email  string `json:"email"`
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}
