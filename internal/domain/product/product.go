package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrExists is returned when creating a product whose ID is taken.
	ErrExists = errors.New("product already exists")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	// Image is a URL or a path relative to the configured image base URL.
	Image     string
	Available bool
}

// Filter narrows List. The zero Filter matches every product.
type Filter struct {
	Category string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// Store adds catalog maintenance to Repository.
type Store interface {
	Repository
	// Create inserts p or fails with ErrExists.
	Create(ctx context.Context, p *Product) error
	// Update replaces the stored product with p.ID or fails with ErrNotFound.
	Update(ctx context.Context, p *Product) error
	// Delete removes the product or fails with ErrNotFound.
	Delete(ctx context.Context, id string) error
}
