// Package blog publishes storefront articles addressed by slug.
package blog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/pkg/slug"
)

// Field limits, in runes.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 500
	MaxContentLength     = 100_000
	MaxAuthorLength      = 100
	MaxImageURLLength    = 2048
	MaxTags              = 10
	MaxTagLength         = 30
)

var (
	// ErrNotFound is returned when no post has the requested slug.
	ErrNotFound = errors.New("post not found")
	// ErrSlugTaken is returned when another post already uses the slug.
	ErrSlugTaken = errors.New("slug already in use")
	// ErrNoChanges is returned by Update for an empty Patch.
	ErrNoChanges = errors.New("at least one field must be provided")
)

// Post is a blog article.
type Post struct {
	ID          string
	Slug        string
	Title       string
	Description string
	Content     string
	ImageURL    string
	Author      string
	Tags        []string
	PublishedAt time.Time
	UpdatedAt   time.Time
}

// Patch holds the fields of an update; nil fields are left unchanged.
type Patch struct {
	Slug        *string
	Title       *string
	Description *string
	Content     *string
	ImageURL    *string
	Author      *string
	Tags        *[]string
	PublishedAt *time.Time
}

func (p Patch) empty() bool {
	return p.Slug == nil && p.Title == nil && p.Description == nil && p.Content == nil &&
		p.ImageURL == nil && p.Author == nil && p.Tags == nil && p.PublishedAt == nil
}

// FieldError reports an invalid post field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Repository persists posts.
type Repository interface {
	// List returns posts newest first.
	List(ctx context.Context) ([]Post, error)
	GetBySlug(ctx context.Context, slug string) (*Post, error)
	// Create inserts p or fails with ErrSlugTaken.
	Create(ctx context.Context, p *Post) error
	// Update replaces the post with p.ID or fails with ErrNotFound or
	// ErrSlugTaken.
	Update(ctx context.Context, p *Post) error
	// Delete removes the post with the given slug or fails with ErrNotFound.
	Delete(ctx context.Context, slug string) error
}

// Service validates and stores posts.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a blog Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns every post, newest first.
func (s *Service) List(ctx context.Context) ([]Post, error) {
	return s.repo.List(ctx)
}

// Get returns the post with the given slug.
func (s *Service) Get(ctx context.Context, slug string) (*Post, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// Create validates p and stores it. An empty slug is derived from the title
// and a zero PublishedAt means now.
func (s *Service) Create(ctx context.Context, p Post) (*Post, error) {
	normalize(&p)
	if p.Slug == "" {
		p.Slug = slug.Make(p.Title)
	}
	now := s.now().UTC()
	if p.PublishedAt.IsZero() {
		p.PublishedAt = now
	}
	p.UpdatedAt = now
	if err := validate(&p); err != nil {
		return nil, err
	}

	p.ID = uuid.NewString()
	if err := s.repo.Create(ctx, &p); err != nil {
		return nil, errors.Wrap(err, "create post")
	}
	return &p, nil
}

// Update applies patch to the post with the given slug.
func (s *Service) Update(ctx context.Context, postSlug string, patch Patch) (*Post, error) {
	if patch.empty() {
		return nil, ErrNoChanges
	}
	p, err := s.repo.GetBySlug(ctx, postSlug)
	if err != nil {
		return nil, errors.Wrap(err, "get post")
	}

	if patch.Slug != nil {
		p.Slug = *patch.Slug
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Content != nil {
		p.Content = *patch.Content
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	if patch.Author != nil {
		p.Author = *patch.Author
	}
	if patch.Tags != nil {
		p.Tags = *patch.Tags
	}
	if patch.PublishedAt != nil {
		p.PublishedAt = patch.PublishedAt.UTC()
	}
	normalize(p)
	p.UpdatedAt = s.now().UTC()
	if err := validate(p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update post")
	}
	return p, nil
}

// Delete removes the post with the given slug.
func (s *Service) Delete(ctx context.Context, slug string) error {
	if err := s.repo.Delete(ctx, slug); err != nil {
		return errors.Wrap(err, "delete post")
	}
	return nil
}

// normalize trims text fields and lowercases, trims and deduplicates tags,
// dropping empty ones.
func normalize(p *Post) {
	p.Slug = strings.TrimSpace(p.Slug)
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.Content = strings.TrimSpace(p.Content)
	p.ImageURL = strings.TrimSpace(p.ImageURL)
	p.Author = strings.TrimSpace(p.Author)

	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	p.Tags = tags
}

func validate(p *Post) error {
	switch n := utf8.RuneCountInString(p.Title); {
	case n == 0:
		return &FieldError{Field: "title", Reason: "is required"}
	case n > MaxTitleLength:
		return &FieldError{Field: "title", Reason: fmt.Sprintf("must be at most %d characters", MaxTitleLength)}
	}
	if !slug.Valid(p.Slug) {
		return &FieldError{Field: "slug", Reason: "must contain only lowercase letters, digits and single hyphens"}
	}
	if utf8.RuneCountInString(p.Description) > MaxDescriptionLength {
		return &FieldError{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", MaxDescriptionLength)}
	}
	switch n := utf8.RuneCountInString(p.Content); {
	case n == 0:
		return &FieldError{Field: "content", Reason: "is required"}
	case n > MaxContentLength:
		return &FieldError{Field: "content", Reason: fmt.Sprintf("must be at most %d characters", MaxContentLength)}
	}
	if utf8.RuneCountInString(p.Author) > MaxAuthorLength {
		return &FieldError{Field: "author", Reason: fmt.Sprintf("must be at most %d characters", MaxAuthorLength)}
	}
	if len(p.ImageURL) > MaxImageURLLength {
		return &FieldError{Field: "imageUrl", Reason: fmt.Sprintf("must be at most %d bytes", MaxImageURLLength)}
	}
	if len(p.Tags) > MaxTags {
		return &FieldError{Field: "tags", Reason: fmt.Sprintf("must have at most %d entries", MaxTags)}
	}
	for _, t := range p.Tags {
		if utf8.RuneCountInString(t) > MaxTagLength {
			return &FieldError{Field: "tags", Reason: fmt.Sprintf("entries must be at most %d characters", MaxTagLength)}
		}
	}
	return nil
}
