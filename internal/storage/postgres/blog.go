package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/blog"
)

const (
	postColumns = `id, slug, title, description, content, image_url, author, tags, published_at, updated_at`

	listPostsSQL     = `SELECT ` + postColumns + ` FROM blog_posts ORDER BY published_at DESC, id`
	getPostBySlugSQL = `SELECT ` + postColumns + ` FROM blog_posts WHERE slug = $1`
	createPostSQL    = `INSERT INTO blog_posts (` + postColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	updatePostSQL = `UPDATE blog_posts SET
			slug = $2, title = $3, description = $4, content = $5, image_url = $6,
			author = $7, tags = $8, published_at = $9, updated_at = $10
		WHERE id = $1`
	deletePostSQL = `DELETE FROM blog_posts WHERE slug = $1`
)

var _ blog.Repository = (*BlogRepository)(nil)

// BlogRepository implements blog.Repository backed by PostgreSQL.
type BlogRepository struct {
	pool *pgxpool.Pool
}

// NewBlogRepository returns a BlogRepository that uses the given pool.
func NewBlogRepository(pool *pgxpool.Pool) *BlogRepository {
	return &BlogRepository{pool: pool}
}

// List returns every post, newest first.
func (r *BlogRepository) List(ctx context.Context) ([]blog.Post, error) {
	rows, err := r.pool.Query(ctx, listPostsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	return pgx.CollectRows(rows, scanPost)
}

// GetBySlug returns the post with the given slug or blog.ErrNotFound.
func (r *BlogRepository) GetBySlug(ctx context.Context, slug string) (*blog.Post, error) {
	rows, err := r.pool.Query(ctx, getPostBySlugSQL, slug)
	if err != nil {
		return nil, fmt.Errorf("getting post %q: %w", slug, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, blog.ErrNotFound
		}
		return nil, fmt.Errorf("getting post %q: %w", slug, err)
	}
	return &p, nil
}

// Create inserts p, failing with blog.ErrSlugTaken on a duplicate slug.
func (r *BlogRepository) Create(ctx context.Context, p *blog.Post) error {
	_, err := r.pool.Exec(ctx, createPostSQL,
		p.ID, p.Slug, p.Title, p.Description, p.Content, p.ImageURL, p.Author, tagsOrEmpty(p.Tags),
		p.PublishedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return blog.ErrSlugTaken
		}
		return fmt.Errorf("creating post %q: %w", p.Slug, err)
	}
	return nil
}

// Update replaces the post with p.ID.
func (r *BlogRepository) Update(ctx context.Context, p *blog.Post) error {
	tag, err := r.pool.Exec(ctx, updatePostSQL,
		p.ID, p.Slug, p.Title, p.Description, p.Content, p.ImageURL, p.Author, tagsOrEmpty(p.Tags),
		p.PublishedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return blog.ErrSlugTaken
		}
		return fmt.Errorf("updating post %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return blog.ErrNotFound
	}
	return nil
}

// Delete removes the post with the given slug.
func (r *BlogRepository) Delete(ctx context.Context, slug string) error {
	tag, err := r.pool.Exec(ctx, deletePostSQL, slug)
	if err != nil {
		return fmt.Errorf("deleting post %q: %w", slug, err)
	}
	if tag.RowsAffected() == 0 {
		return blog.ErrNotFound
	}
	return nil
}

// tagsOrEmpty keeps nil slices from being stored as NULL.
func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func scanPost(row pgx.CollectableRow) (blog.Post, error) {
	var p blog.Post
	err := row.Scan(
		&p.ID, &p.Slug, &p.Title, &p.Description, &p.Content, &p.ImageURL, &p.Author, &p.Tags,
		&p.PublishedAt, &p.UpdatedAt,
	)
	return p, err
}
