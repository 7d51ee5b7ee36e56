package order

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// ErrEmptyCart is returned when checkout is attempted without items.
var ErrEmptyCart = errors.New("cart is empty")

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ProductUnavailableError indicates a product exists but is not for sale.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// CustomerError reports an invalid customer field.
type CustomerError struct {
	Field  string
	Reason string
}

func (e *CustomerError) Error() string {
	return fmt.Sprintf("customer %s %s", e.Field, e.Reason)
}

// Item is a requested checkout line.
type Item struct {
	ProductID string
	Quantity  int
}

// CheckoutRequest holds the input for a checkout.
type CheckoutRequest struct {
	Customer Customer
	Items    []Item
}

// Service encapsulates checkout business logic.
type Service struct {
	products product.Repository
	orders   Repository
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(products product.Repository, orders Repository) *Service {
	return &Service{
		products: products,
		orders:   orders,
		now:      time.Now,
	}
}

// Checkout validates the customer and items, prices every line from the
// catalog in a single batch, and persists a pending order.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	customer, err := normalizeCustomer(req.Customer)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]Line, len(req.Items))
	total := decimal.Zero
	for i, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if !p.Available {
			return nil, &ProductUnavailableError{ProductID: item.ProductID}
		}
		lines[i] = Line{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  item.Quantity,
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	o := &Order{
		ID:        uuid.NewString(),
		Customer:  customer,
		Items:     lines,
		Total:     total.Round(2),
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

func normalizeCustomer(c Customer) (Customer, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Address = strings.TrimSpace(c.Address)
	c.Phone = strings.TrimSpace(c.Phone)

	switch {
	case c.Name == "":
		return c, &CustomerError{Field: "name", Reason: "is required"}
	case len(c.Name) > 200:
		return c, &CustomerError{Field: "name", Reason: "is too long"}
	case c.Email == "":
		return c, &CustomerError{Field: "email", Reason: "is required"}
	case c.Address == "":
		return c, &CustomerError{Field: "address", Reason: "is required"}
	}
	addr, err := mail.ParseAddress(c.Email)
	if err != nil || addr.Address != c.Email {
		return c, &CustomerError{Field: "email", Reason: "is invalid"}
	}
	return c, nil
}
