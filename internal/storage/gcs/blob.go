// Package gcs stores gallery blobs in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/go-faster/errors"
	"google.golang.org/api/option"

	"github.com/xenking/storefront/internal/domain/media"
)

const (
	// DefaultPublicBaseURL serves objects of publicly readable buckets.
	DefaultPublicBaseURL = "https://storage.googleapis.com"

	// googleChunkSize is the default resumable upload chunk size of the
	// storage client.
	googleChunkSize = 16 << 20
)

var _ media.BlobStore = (*BlobStore)(nil)

// ClientConfig selects credentials and endpoint for NewClient.
type ClientConfig struct {
	// CredentialsFile is a service account JSON file. Empty uses
	// application default credentials.
	CredentialsFile string
	// Endpoint overrides the API endpoint, e.g. for an emulator. Requests to
	// a custom endpoint are sent unauthenticated.
	Endpoint string
}

// NewClient creates a storage client.
func NewClient(ctx context.Context, cfg ClientConfig) (*storage.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create storage client")
	}
	return client, nil
}

// BlobStore writes objects under Prefix in one bucket. The bucket is
// expected to grant public read through IAM; no per-object ACLs are set.
type BlobStore struct {
	bucket        *storage.BucketHandle
	bucketName    string
	prefix        string
	publicBaseURL string
}

// NewBlobStore creates a BlobStore. An empty publicBaseURL uses
// DefaultPublicBaseURL.
func NewBlobStore(client *storage.Client, bucket, prefix, publicBaseURL string) *BlobStore {
	if publicBaseURL == "" {
		publicBaseURL = DefaultPublicBaseURL
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &BlobStore{
		bucket:        client.Bucket(bucket),
		bucketName:    bucket,
		prefix:        prefix,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Put uploads body and returns its public URL.
func (s *BlobStore) Put(ctx context.Context, name, contentType string, body io.Reader, size int64) (string, error) {
	object := s.prefix + name
	w := s.bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000, immutable"
	w.Metadata = map[string]string{
		"uploadedAt": time.Now().UTC().Format(time.RFC3339),
	}
	// Small images fit one request.
	if size > 0 && size < googleChunkSize {
		w.ChunkSize = 0
	}

	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return "", errors.Wrapf(err, "write object %s", object)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "close object %s", object)
	}
	return s.URL(name), nil
}

// Delete removes the object stored under name.
func (s *BlobStore) Delete(ctx context.Context, name string) error {
	object := s.prefix + name
	if err := s.bucket.Object(object).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return media.ErrNotFound
		}
		return errors.Wrapf(err, "delete object %s", object)
	}
	return nil
}

// URL returns the public URL of name.
func (s *BlobStore) URL(name string) string {
	return s.publicBaseURL + "/" + url.PathEscape(s.bucketName) + "/" + escapeObject(s.prefix+name)
}

// Ping checks the bucket is reachable.
func (s *BlobStore) Ping(ctx context.Context) error {
	if _, err := s.bucket.Attrs(ctx); err != nil {
		return errors.Wrap(err, "bucket attrs")
	}
	return nil
}

func escapeObject(object string) string {
	parts := strings.Split(object, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
