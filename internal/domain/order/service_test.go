package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context, _ product.Filter) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockOrderRepo struct {
	lastOrder *Order
	err       error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.lastOrder = o
	return m.err
}

// --- Helpers ---

func newTestProduct(id, name string, price string) product.Product {
	return product.Product{
		ID:        id,
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Category:  "test",
		Image:     id + ".jpg",
		Available: true,
	}
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

var validCustomer = Customer{
	Name:    "Ada Lovelace",
	Email:   "ada@example.com",
	Address: "12 Analytical St, London",
}

// --- Tests ---

func TestCheckout_EmptyCart(t *testing.T) {
	svc := NewService(newProductRepo(), &mockOrderRepo{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{Customer: validCustomer})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_InvalidCustomer(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", "10")
	items := []Item{{ProductID: "p1", Quantity: 1}}

	tests := []struct {
		name     string
		customer Customer
		field    string
	}{
		{"missing name", Customer{Email: "a@b.co", Address: "x"}, "name"},
		{"blank name", Customer{Name: "  ", Email: "a@b.co", Address: "x"}, "name"},
		{"missing email", Customer{Name: "A", Address: "x"}, "email"},
		{"bad email", Customer{Name: "A", Email: "not-an-email", Address: "x"}, "email"},
		{"display name email", Customer{Name: "A", Email: "A <a@b.co>", Address: "x"}, "email"},
		{"missing address", Customer{Name: "A", Email: "a@b.co"}, "address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newProductRepo(p1), &mockOrderRepo{})
			_, err := svc.Checkout(context.Background(), CheckoutRequest{Customer: tt.customer, Items: items})

			var cErr *CustomerError
			require.ErrorAs(t, err, &cErr)
			assert.Equal(t, tt.field, cErr.Field)
		})
	}
}

func TestCheckout_InvalidQuantity(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", "10")
	svc := NewService(newProductRepo(p1), &mockOrderRepo{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Customer: validCustomer,
		Items:    []Item{{ProductID: "p1", Quantity: 0}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
}

func TestCheckout_ProductNotFound(t *testing.T) {
	svc := NewService(newProductRepo(), &mockOrderRepo{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Customer: validCustomer,
		Items:    []Item{{ProductID: "missing", Quantity: 1}},
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
}

func TestCheckout_ProductUnavailable(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", "10")
	p1.Available = false
	svc := NewService(newProductRepo(p1), &mockOrderRepo{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Customer: validCustomer,
		Items:    []Item{{ProductID: "p1", Quantity: 1}},
	})

	var puErr *ProductUnavailableError
	require.ErrorAs(t, err, &puErr)
	assert.Equal(t, "p1", puErr.ProductID)
}

func TestCheckout_Success(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", "10.00")
	p2 := newTestProduct("p2", "Gadget", "20.005")
	repo := &mockOrderRepo{}
	svc := NewService(newProductRepo(p1, p2), repo)

	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		Customer: Customer{Name: " Ada ", Email: "ada@example.com", Address: "London"},
		Items: []Item{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "Ada", o.Customer.Name)
	assert.True(t, decimal.RequireFromString("40.01").Equal(o.Total), o.Total.String())
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Widget", o.Items[0].Name)
	assert.True(t, p1.Price.Equal(o.Items[0].Price))
	assert.False(t, o.CreatedAt.IsZero())
	assert.Same(t, o, repo.lastOrder)
}

func TestCheckout_ProductRepoError(t *testing.T) {
	pr := newProductRepo()
	pr.getErr = errors.New("db down")
	svc := NewService(pr, &mockOrderRepo{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Customer: validCustomer,
		Items:    []Item{{ProductID: "p1", Quantity: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get products")
}

func TestCheckout_OrderRepoError(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", "10")
	svc := NewService(newProductRepo(p1), &mockOrderRepo{err: errors.New("insert failed")})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Customer: validCustomer,
		Items:    []Item{{ProductID: "p1", Quantity: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}
