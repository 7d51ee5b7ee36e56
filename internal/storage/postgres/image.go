package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/media"
)

const (
	imageColumns = `id, filename, original_name, url, content_type, size, digest,
		title, description, display_order, uploaded_at`

	createImageSQL = `INSERT INTO gallery_images (` + imageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getImageSQL         = `SELECT ` + imageColumns + ` FROM gallery_images WHERE id = $1`
	getImageByDigestSQL = `SELECT ` + imageColumns + ` FROM gallery_images WHERE digest = $1`
	listImagesSQL       = `SELECT ` + imageColumns + ` FROM gallery_images ORDER BY display_order, uploaded_at`
	deleteImageSQL      = `DELETE FROM gallery_images WHERE id = $1`
)

var _ media.Repository = (*ImageRepository)(nil)

// ImageRepository implements media.Repository backed by PostgreSQL.
type ImageRepository struct {
	pool *pgxpool.Pool
}

// NewImageRepository returns an ImageRepository that uses the given pool.
func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

// Create inserts a gallery record.
func (r *ImageRepository) Create(ctx context.Context, img *media.Image) error {
	_, err := r.pool.Exec(ctx, createImageSQL,
		img.ID, img.Filename, img.OriginalName, img.URL, img.ContentType, img.Size, img.Digest,
		img.Title, img.Description, img.Order, img.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("creating image %q: %w", img.ID, err)
	}
	return nil
}

// Get returns the image with the given id or media.ErrNotFound.
func (r *ImageRepository) Get(ctx context.Context, id string) (*media.Image, error) {
	return r.one(ctx, getImageSQL, id)
}

// FindByDigest returns the image with the given content digest or
// media.ErrNotFound.
func (r *ImageRepository) FindByDigest(ctx context.Context, digest string) (*media.Image, error) {
	return r.one(ctx, getImageByDigestSQL, digest)
}

// List returns images by display order, then upload time.
func (r *ImageRepository) List(ctx context.Context) ([]media.Image, error) {
	rows, err := r.pool.Query(ctx, listImagesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	return pgx.CollectRows(rows, scanImage)
}

// Delete removes the record with the given id.
func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteImageSQL, id)
	if err != nil {
		return fmt.Errorf("deleting image %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return media.ErrNotFound
	}
	return nil
}

func (r *ImageRepository) one(ctx context.Context, query, arg string) (*media.Image, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting image: %w", err)
	}
	img, err := pgx.CollectExactlyOneRow(rows, scanImage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, media.ErrNotFound
		}
		return nil, fmt.Errorf("getting image: %w", err)
	}
	return &img, nil
}

func scanImage(row pgx.CollectableRow) (media.Image, error) {
	var img media.Image
	err := row.Scan(
		&img.ID, &img.Filename, &img.OriginalName, &img.URL, &img.ContentType, &img.Size, &img.Digest,
		&img.Title, &img.Description, &img.Order, &img.UploadedAt,
	)
	return img, err
}
