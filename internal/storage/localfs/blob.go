// Package localfs stores gallery blobs in a local directory. It is meant for
// development and single-node deployments; the app serves the directory
// under the configured public path.
package localfs

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/media"
)

var _ media.BlobStore = (*BlobStore)(nil)

// BlobStore writes blobs into one flat directory.
type BlobStore struct {
	dir     string
	baseURL string
}

// NewBlobStore creates dir if needed. Public URLs are baseURL + "/" + name.
func NewBlobStore(dir, baseURL string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create blob dir")
	}
	return &BlobStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the storage directory.
func (s *BlobStore) Dir() string {
	return s.dir
}

// Put writes body to a temporary file and renames it into place, so readers
// never observe a partial blob. Existing names are not overwritten.
func (s *BlobStore) Put(_ context.Context, name, _ string, body io.Reader, _ int64) (string, error) {
	target, err := s.path(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(target); err == nil {
		return "", errors.Errorf("blob %s already exists", name)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return "", errors.Wrap(err, "write blob")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "close blob")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", errors.Wrap(err, "chmod blob")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", errors.Wrap(err, "rename blob")
	}
	return s.baseURL + "/" + name, nil
}

// Delete removes name.
func (s *BlobStore) Delete(_ context.Context, name string) error {
	target, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return media.ErrNotFound
		}
		return errors.Wrap(err, "remove blob")
	}
	return nil
}

// path rejects names that are not a single plain path element.
func (s *BlobStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", errors.Errorf("invalid blob name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}
