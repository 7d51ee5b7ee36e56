// Package media stores validated gallery images. Uploads pass through the
// upload validator, are de-duplicated by content digest, written to a blob
// store under a generated name and recorded in the repository.
package media

import (
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an image or blob does not exist.
var ErrNotFound = errors.New("image not found")

// Image is a gallery record.
type Image struct {
	ID           string
	Filename     string
	OriginalName string
	URL          string
	ContentType  string
	Size         int64
	// Digest is the hex SHA-256 of the content.
	Digest      string
	Title       string
	Description string
	// Order is the display position; lower comes first.
	Order      int
	UploadedAt time.Time
}

// Repository persists gallery records.
type Repository interface {
	Create(ctx context.Context, img *Image) error
	Get(ctx context.Context, id string) (*Image, error)
	FindByDigest(ctx context.Context, digest string) (*Image, error)
	// List returns images by Order, then UploadedAt.
	List(ctx context.Context) ([]Image, error)
	Delete(ctx context.Context, id string) error
}

// BlobStore holds image content.
type BlobStore interface {
	// Put writes size bytes from body under name and returns the public URL.
	Put(ctx context.Context, name, contentType string, body io.Reader, size int64) (string, error)
	// Delete removes name. Missing blobs yield ErrNotFound.
	Delete(ctx context.Context, name string) error
}
