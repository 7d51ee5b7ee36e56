package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/pkg/upload"
)

const (
	defaultExpectedImages = 100_000
	digestFPR             = 0.001
)

// UploadRequest is one uploaded file with its gallery metadata.
type UploadRequest struct {
	File        upload.File
	Title       string
	Description string
	Order       int
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider enables upload spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("storefront/media") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithExpectedImages sizes the duplicate digest filter.
func WithExpectedImages(n uint) Option {
	return func(s *Service) { s.expected = n }
}

// Service implements gallery uploads.
type Service struct {
	validator *upload.Validator
	blobs     BlobStore
	images    Repository
	tracer    trace.Tracer
	now       func() time.Time
	expected  uint

	// seen holds digests of stored images. A miss proves the content is new
	// and skips the repository lookup.
	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// NewService creates a media Service.
func NewService(v *upload.Validator, blobs BlobStore, images Repository, opts ...Option) *Service {
	s := &Service{
		validator: v,
		blobs:     blobs,
		images:    images,
		tracer:    noop.NewTracerProvider().Tracer(""),
		now:       time.Now,
		expected:  defaultExpectedImages,
	}
	for _, o := range opts {
		o(s)
	}
	s.seen = bloom.NewWithEstimates(s.expected, digestFPR)
	return s
}

// Warm loads the digests of existing images into the duplicate filter.
func (s *Service) Warm(ctx context.Context) error {
	images, err := s.images.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list images")
	}
	s.mu.Lock()
	for _, img := range images {
		s.seen.AddString(img.Digest)
	}
	s.mu.Unlock()

	zctx.From(ctx).Info("Media digest filter warmed", zap.Int("images", len(images)))
	return nil
}

// Upload validates and stores req.File. When identical content is already
// stored the existing image is returned with created=false. Validation
// failures are returned as *upload.ValidationError.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (_ *Image, created bool, rerr error) {
	ctx, span := s.tracer.Start(ctx, "media.Upload", trace.WithAttributes(
		attribute.String("file.name", req.File.Name),
		attribute.String("file.content_type", req.File.ContentType),
		attribute.Int64("file.size", req.File.Size),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	f := req.File
	if err := s.validator.Validate(f); err != nil {
		return nil, false, err
	}

	digest, err := contentDigest(f)
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.String("file.digest", digest))

	if s.maybeSeen(digest) {
		existing, err := s.images.FindByDigest(ctx, digest)
		switch {
		case err == nil:
			span.SetAttributes(attribute.Bool("media.duplicate", true))
			return existing, false, nil
		case !errors.Is(err, ErrNotFound):
			return nil, false, errors.Wrap(err, "find by digest")
		}
	}

	now := s.now().UTC()
	contentType := mediaType(f.ContentType)
	name := upload.SecureFilename(f.Name, now)

	url, err := s.blobs.Put(ctx, name, contentType, io.NewSectionReader(f.Body, 0, f.Size), f.Size)
	if err != nil {
		return nil, false, errors.Wrap(err, "put blob")
	}

	img := &Image{
		ID:           uuid.NewString(),
		Filename:     name,
		OriginalName: upload.SanitizeFilename(f.Name),
		URL:          url,
		ContentType:  contentType,
		Size:         f.Size,
		Digest:       digest,
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		Order:        req.Order,
		UploadedAt:   now,
	}
	if img.Title == "" {
		img.Title = strings.TrimSuffix(img.OriginalName, path.Ext(img.OriginalName))
	}

	if err := s.images.Create(ctx, img); err != nil {
		if delErr := s.blobs.Delete(ctx, name); delErr != nil {
			zctx.From(ctx).Warn("Orphaned blob after failed insert",
				zap.String("blob", name),
				zap.Error(delErr),
			)
		}
		return nil, false, errors.Wrap(err, "create image")
	}

	s.mu.Lock()
	s.seen.AddString(digest)
	s.mu.Unlock()

	zctx.From(ctx).Info("Image uploaded",
		zap.String("id", img.ID),
		zap.String("blob", name),
		zap.Int64("size", img.Size),
	)
	return img, true, nil
}

// List returns gallery images in display order.
func (s *Service) List(ctx context.Context) ([]Image, error) {
	images, err := s.images.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list images")
	}
	return images, nil
}

// Delete removes the blob and then the record of image id. A blob that is
// already gone does not prevent removing the record.
func (s *Service) Delete(ctx context.Context, id string) error {
	img, err := s.images.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, img.Filename); err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Wrap(err, "delete blob")
	}
	if err := s.images.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete image")
	}
	// Bloom filters cannot forget; a stale positive only costs one lookup.
	return nil
}

func (s *Service) maybeSeen(digest string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen.TestString(digest)
}

func contentDigest(f upload.File) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(f.Body, 0, f.Size)); err != nil {
		return "", errors.Wrap(err, "hash content")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
