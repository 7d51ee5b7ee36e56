package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order. Payment is handled by an
// external processor, so orders are created pending.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Customer holds the contact and shipping details of an order.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Phone   string `json:"phone,omitempty"`
}

// Order represents a placed checkout.
type Order struct {
	ID        string
	Customer  Customer
	Items     []Line
	Total     decimal.Decimal
	Status    Status
	CreatedAt time.Time
}

// Line is a priced order line. Price is the catalog price at checkout time.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
}
