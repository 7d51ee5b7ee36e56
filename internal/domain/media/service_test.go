package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront/pkg/upload"
)

// --- Fakes ---

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: make(map[string][]byte)} }

func (m *memBlobs) Put(_ context.Context, name, _ string, body io.Reader, _ int64) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[name] = data
	m.mu.Unlock()
	return "https://cdn.test/" + name, nil
}

func (m *memBlobs) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[name]; !ok {
		return ErrNotFound
	}
	delete(m.objects, name)
	return nil
}

type memImages struct {
	mu        sync.Mutex
	byID      map[string]Image
	createErr error
	lookups   int
}

func newMemImages() *memImages { return &memImages{byID: make(map[string]Image)} }

func (m *memImages) Create(_ context.Context, img *Image) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	m.byID[img.ID] = *img
	m.mu.Unlock()
	return nil
}

func (m *memImages) Get(_ context.Context, id string) (*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &img, nil
}

func (m *memImages) FindByDigest(_ context.Context, digest string) (*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	for _, img := range m.byID {
		if img.Digest == digest {
			return &img, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memImages) List(_ context.Context) ([]Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Image, 0, len(m.byID))
	for _, img := range m.byID {
		out = append(out, img)
	}
	slices.SortFunc(out, func(a, b Image) int { return a.Order - b.Order })
	return out, nil
}

func (m *memImages) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

// --- Helpers ---

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func pngFile(name string, seed byte) upload.File {
	body := make([]byte, 2<<10)
	copy(body, pngMagic)
	body[len(body)-1] = seed
	return upload.File{
		Name:        name,
		ContentType: "image/png",
		Size:        int64(len(body)),
		Body:        bytes.NewReader(body),
	}
}

func newTestService(blobs *memBlobs, images *memImages) *Service {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return NewService(upload.NewValidator(upload.Config{}), blobs, images,
		WithClock(func() time.Time { return now }),
		WithTracerProvider(noop.NewTracerProvider()),
		WithExpectedImages(1000),
	)
}

// --- Tests ---

func TestUpload_Stores(t *testing.T) {
	blobs, images := newMemBlobs(), newMemImages()
	svc := newTestService(blobs, images)
	f := pngFile("../../Holiday Photo.PNG", 1)

	img, created, err := svc.Upload(context.Background(), UploadRequest{File: f, Description: " beach ", Order: 3})
	require.NoError(t, err)
	assert.True(t, created)

	assert.Regexp(t, `^1714564800000_[0-9a-f]{13}\.png$`, img.Filename)
	assert.Equal(t, "https://cdn.test/"+img.Filename, img.URL)
	assert.Equal(t, "holiday_photo.png", img.OriginalName)
	assert.Equal(t, "holiday_photo", img.Title)
	assert.Equal(t, "beach", img.Description)
	assert.Equal(t, 3, img.Order)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, f.Size, img.Size)

	body := make([]byte, f.Size)
	_, _ = f.Body.ReadAt(body, 0)
	sum := sha256.Sum256(body)
	assert.Equal(t, hex.EncodeToString(sum[:]), img.Digest)

	assert.Equal(t, body, blobs.objects[img.Filename])
	stored, err := images.Get(context.Background(), img.ID)
	require.NoError(t, err)
	assert.Equal(t, img.Digest, stored.Digest)
}

func TestUpload_ValidationError(t *testing.T) {
	blobs, images := newMemBlobs(), newMemImages()
	svc := newTestService(blobs, images)

	f := pngFile("photo.jpg", 1)
	f.ContentType = "image/jpeg"

	_, _, err := svc.Upload(context.Background(), UploadRequest{File: f})

	var vErr *upload.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ErrorIs(t, err, upload.ErrSignatureMismatch)
	assert.Empty(t, blobs.objects)
	assert.Empty(t, images.byID)
}

func TestUpload_Duplicate(t *testing.T) {
	blobs, images := newMemBlobs(), newMemImages()
	svc := newTestService(blobs, images)
	ctx := context.Background()

	first, created, err := svc.Upload(ctx, UploadRequest{File: pngFile("a.png", 7), Title: "First"})
	require.NoError(t, err)
	require.True(t, created)
	assert.Zero(t, images.lookups, "unseen digest skips the lookup")

	again, created, err := svc.Upload(ctx, UploadRequest{File: pngFile("b.png", 7), Title: "Second"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "First", again.Title)
	assert.Len(t, blobs.objects, 1)

	_, created, err = svc.Upload(ctx, UploadRequest{File: pngFile("c.png", 8)})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, blobs.objects, 2)
}

func TestUpload_WarmDetectsExisting(t *testing.T) {
	blobs, images := newMemBlobs(), newMemImages()
	ctx := context.Background()

	first, _, err := newTestService(blobs, images).Upload(ctx, UploadRequest{File: pngFile("a.png", 1)})
	require.NoError(t, err)

	// A fresh process has an empty filter until warmed.
	svc := newTestService(blobs, images)
	require.NoError(t, svc.Warm(ctx))

	again, created, err := svc.Upload(ctx, UploadRequest{File: pngFile("a.png", 1)})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
}

func TestUpload_PutError(t *testing.T) {
	blobs, images := newMemBlobs(), newMemImages()
	blobs.putErr = errors.New("bucket unavailable")
	svc := newTestService(blobs, images)

	_, _, err := svc.Upload(context.Background(), UploadRequest{File: pngFile("a.png", 1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put blob")
	assert.Empty(t, images.byID)
}

func TestUpload_CreateErrorRemovesBlob(t *testing.T) {
	blobs, images := newMemBlobs(), newMemImages()
	images.createErr = errors.New("insert failed")
	svc := newTestService(blobs, images)

	_, _, err := svc.Upload(context.Background(), UploadRequest{File: pngFile("a.png", 1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create image")
	assert.Empty(t, blobs.objects)
}

func TestDelete(t *testing.T) {
	blobs, images := newMemBlobs(), newMemImages()
	svc := newTestService(blobs, images)
	ctx := context.Background()

	img, _, err := svc.Upload(ctx, UploadRequest{File: pngFile("a.png", 1)})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, img.ID))
	assert.Empty(t, blobs.objects)
	assert.Empty(t, images.byID)

	assert.ErrorIs(t, svc.Delete(ctx, img.ID), ErrNotFound)
}

func TestDelete_MissingBlob(t *testing.T) {
	blobs, images := newMemBlobs(), newMemImages()
	svc := newTestService(blobs, images)
	ctx := context.Background()

	img, _, err := svc.Upload(ctx, UploadRequest{File: pngFile("a.png", 1)})
	require.NoError(t, err)
	delete(blobs.objects, img.Filename)

	require.NoError(t, svc.Delete(ctx, img.ID))
	assert.Empty(t, images.byID)
}

func TestList(t *testing.T) {
	blobs, images := newMemBlobs(), newMemImages()
	svc := newTestService(blobs, images)
	ctx := context.Background()

	_, _, err := svc.Upload(ctx, UploadRequest{File: pngFile("b.png", 2), Order: 2})
	require.NoError(t, err)
	_, _, err = svc.Upload(ctx, UploadRequest{File: pngFile("a.png", 1), Order: 1})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Title)
	assert.Equal(t, "b", list[1].Title)
}
