package product

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/pkg/slug"
)

// Field limits, in runes.
const (
	MaxNameLength        = 200
	MaxDescriptionLength = 5000
	MaxCategoryLength    = 100
	MaxImageLength       = 2048
)

// MaxPrice is the exclusive upper bound of a price; prices are stored as
// NUMERIC(10, 2).
var MaxPrice = decimal.New(1, 8)

// ErrNoChanges is returned by Update for an empty Patch.
var ErrNoChanges = errors.New("at least one field must be provided")

// FieldError reports an invalid product field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Patch holds the fields of an update; nil fields are left unchanged.
type Patch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Category    *string
	Image       *string
	Available   *bool
}

func (p Patch) empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil &&
		p.Category == nil && p.Image == nil && p.Available == nil
}

// Service maintains the catalog.
type Service struct {
	store Store
}

// NewService creates a catalog Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns the products matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, error) {
	f.Category = strings.TrimSpace(f.Category)
	return s.store.List(ctx, f)
}

// Create validates p and stores it. An empty ID is replaced by a fresh one.
func (s *Service) Create(ctx context.Context, p Product) (*Product, error) {
	normalize(&p)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := validate(&p); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, &p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return &p, nil
}

// Update applies patch to the product with the given id.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Product, error) {
	if patch.empty() {
		return nil, ErrNoChanges
	}
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}

	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Image != nil {
		p.Image = *patch.Image
	}
	if patch.Available != nil {
		p.Available = *patch.Available
	}
	normalize(p)
	if err := validate(p); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	return p, nil
}

// Delete removes the product with the given id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete product")
	}
	return nil
}

func normalize(p *Product) {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Category = strings.TrimSpace(p.Category)
	p.Image = strings.TrimSpace(p.Image)
}

func validate(p *Product) error {
	if !slug.Valid(p.ID) {
		return &FieldError{Field: "id", Reason: "must contain only lowercase letters, digits and single hyphens"}
	}
	switch n := utf8.RuneCountInString(p.Name); {
	case n == 0:
		return &FieldError{Field: "name", Reason: "is required"}
	case n > MaxNameLength:
		return &FieldError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", MaxNameLength)}
	}
	if utf8.RuneCountInString(p.Description) > MaxDescriptionLength {
		return &FieldError{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", MaxDescriptionLength)}
	}
	switch {
	case p.Price.IsNegative():
		return &FieldError{Field: "price", Reason: "must not be negative"}
	case p.Price.GreaterThanOrEqual(MaxPrice):
		return &FieldError{Field: "price", Reason: "is too large"}
	case !p.Price.Equal(p.Price.Round(2)):
		return &FieldError{Field: "price", Reason: "must have at most 2 decimal places"}
	}
	if utf8.RuneCountInString(p.Category) > MaxCategoryLength {
		return &FieldError{Field: "category", Reason: fmt.Sprintf("must be at most %d characters", MaxCategoryLength)}
	}
	if len(p.Image) > MaxImageLength {
		return &FieldError{Field: "image", Reason: fmt.Sprintf("must be at most %d bytes", MaxImageLength)}
	}
	return nil
}
