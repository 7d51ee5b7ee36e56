// Package category maintains the product categories of the catalog. A
// category's ID is the value products carry in their Category field.
package category

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/pkg/slug"
)

// Field limits, in runes.
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 1000
)

var (
	// ErrNotFound is returned when a category does not exist.
	ErrNotFound = errors.New("category not found")
	// ErrExists is returned when creating a category whose ID is taken.
	ErrExists = errors.New("category already exists")
	// ErrNoChanges is returned by Update for an empty Patch.
	ErrNoChanges = errors.New("at least one field (name or description) must be provided")
)

// Category groups products.
type Category struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Patch holds the fields of an update; nil fields are left unchanged.
type Patch struct {
	Name        *string
	Description *string
}

// FieldError reports an invalid category field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Repository persists categories.
type Repository interface {
	List(ctx context.Context) ([]Category, error)
	Get(ctx context.Context, id string) (*Category, error)
	// Create inserts c or fails with ErrExists.
	Create(ctx context.Context, c *Category) error
	// Update replaces name and description or fails with ErrNotFound.
	Update(ctx context.Context, c *Category) error
	// Delete removes the category or fails with ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// Service validates and stores categories.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a category Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns every category ordered by name.
func (s *Service) List(ctx context.Context) ([]Category, error) {
	return s.repo.List(ctx)
}

// Get returns the category with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Category, error) {
	return s.repo.Get(ctx, id)
}

// Create validates c and stores it. An empty ID is derived from the name.
func (s *Service) Create(ctx context.Context, c Category) (*Category, error) {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	if c.ID == "" {
		c.ID = slug.Make(c.Name)
	}
	if err := validate(&c); err != nil {
		return nil, err
	}

	c.CreatedAt = s.now().UTC()
	if err := s.repo.Create(ctx, &c); err != nil {
		return nil, errors.Wrap(err, "create category")
	}
	return &c, nil
}

// Update applies patch to the category with the given id.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Category, error) {
	if patch.Name == nil && patch.Description == nil {
		return nil, ErrNoChanges
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get category")
	}
	if patch.Name != nil {
		c.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		c.Description = strings.TrimSpace(*patch.Description)
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update category")
	}
	return c, nil
}

// Delete removes the category with the given id. Products keep their
// category value.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete category")
	}
	return nil
}

func validate(c *Category) error {
	switch n := utf8.RuneCountInString(c.Name); {
	case n == 0:
		return &FieldError{Field: "name", Reason: "is required"}
	case n > MaxNameLength:
		return &FieldError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", MaxNameLength)}
	}
	if !slug.Valid(c.ID) {
		return &FieldError{Field: "id", Reason: "must contain only lowercase letters, digits and single hyphens"}
	}
	if utf8.RuneCountInString(c.Description) > MaxDescriptionLength {
		return &FieldError{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", MaxDescriptionLength)}
	}
	return nil
}
