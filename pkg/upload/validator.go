// Package upload validates user-supplied image uploads before they are
// handed to blob storage.
//
// Checks run in a fixed order and stop at the first failure: declared type
// and extension, size bounds, magic bytes of the declared format and,
// when a DimensionReader is configured, decoded pixel dimensions.
package upload

import (
	"bytes"
	"io"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/go-faster/errors"
)

const (
	// DefaultMinSize rejects empty and placeholder files.
	DefaultMinSize = 1 << 10
	// DefaultMaxSize is the largest accepted upload.
	DefaultMaxSize = 10 << 20
	// DefaultMaxDimension bounds both width and height.
	DefaultMaxDimension = 4096
)

// Format describes an accepted image format. Match reports whether a file
// header carries the format signature.
type Format struct {
	MIME       string
	Extensions []string
	Match      func(header []byte) bool
}

// headerSize is the number of leading bytes needed by the longest signature
// (WebP: "RIFF" + size + "WEBP").
const headerSize = 12

var (
	sigJPEG = []byte{0xFF, 0xD8, 0xFF}
	sigPNG  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	sigGIF  = []byte{0x47, 0x49, 0x46, 0x38}
	sigRIFF = []byte("RIFF")
	sigWEBP = []byte("WEBP")
)

// DefaultFormats is the allow-list of image formats.
var DefaultFormats = []Format{
	{
		MIME:       "image/jpeg",
		Extensions: []string{".jpg", ".jpeg"},
		Match:      func(h []byte) bool { return bytes.HasPrefix(h, sigJPEG) },
	},
	{
		MIME:       "image/png",
		Extensions: []string{".png"},
		Match:      func(h []byte) bool { return bytes.HasPrefix(h, sigPNG) },
	},
	{
		MIME:       "image/webp",
		Extensions: []string{".webp"},
		Match: func(h []byte) bool {
			return len(h) >= headerSize && bytes.HasPrefix(h, sigRIFF) && bytes.Equal(h[8:12], sigWEBP)
		},
	},
	{
		MIME:       "image/gif",
		Extensions: []string{".gif"},
		Match:      func(h []byte) bool { return bytes.HasPrefix(h, sigGIF) },
	},
}

// File is a single upload attempt. Body must allow reads from offset zero
// regardless of prior reads; multipart.File satisfies this.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.ReaderAt
}

// Config holds the validation limits.
type Config struct {
	MinSize   int64
	MaxSize   int64
	MaxWidth  int
	MaxHeight int
}

func (c *Config) setDefaults() {
	if c.MinSize <= 0 {
		c.MinSize = DefaultMinSize
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.MaxWidth <= 0 {
		c.MaxWidth = DefaultMaxDimension
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = DefaultMaxDimension
	}
}

// Option configures a Validator.
type Option func(*Validator)

// WithDimensionReader enables the dimension check. Without it the check is
// skipped entirely.
func WithDimensionReader(r DimensionReader) Option {
	return func(v *Validator) {
		v.dims = r
	}
}

// WithFormats replaces the allow-list of formats.
func WithFormats(formats ...Format) Option {
	return func(v *Validator) {
		v.formats = formats
	}
}

// Validator runs the upload checks. It holds no mutable state and is safe
// for concurrent use.
type Validator struct {
	cfg     Config
	formats []Format
	dims    DimensionReader
}

// NewValidator returns a Validator with cfg, filling zero limits with the
// package defaults.
func NewValidator(cfg Config, opts ...Option) *Validator {
	cfg.setDefaults()
	v := &Validator{cfg: cfg, formats: DefaultFormats}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Config returns the effective limits.
func (v *Validator) Config() Config {
	return v.cfg
}

// DimensionCheck reports whether decoded dimensions are verified.
func (v *Validator) DimensionCheck() bool {
	return v.dims != nil
}

// Validate runs every check against f. The returned error is either a
// *ValidationError or, for I/O failures while reading the body, a wrapped
// read error.
func (v *Validator) Validate(f File) error {
	format, err := v.CheckType(f.Name, f.ContentType)
	if err != nil {
		return err
	}
	if err := v.CheckSize(f.Size); err != nil {
		return err
	}
	if err := CheckSignature(format, f.Body); err != nil {
		return err
	}
	if v.dims != nil {
		if err := v.checkDimensions(f); err != nil {
			return err
		}
	}
	return nil
}

// CheckType looks up the declared MIME type in the allow-list and verifies
// the file extension belongs to it.
func (v *Validator) CheckType(name, contentType string) (Format, error) {
	mime := normalizeMIME(contentType)
	idx := slices.IndexFunc(v.formats, func(f Format) bool { return f.MIME == mime })
	if idx < 0 {
		return Format{}, reject(ErrTypeNotAllowed,
			"File type %s is not allowed. Allowed types: %s", mime, strings.Join(v.allowedTypes(), ", "))
	}
	format := v.formats[idx]

	ext := strings.ToLower(path.Ext(name))
	if !slices.Contains(format.Extensions, ext) {
		return Format{}, reject(ErrExtensionMismatch, "File extension does not match MIME type %s", mime)
	}
	return format, nil
}

// CheckSize enforces the configured size bounds.
func (v *Validator) CheckSize(size int64) error {
	if size > v.cfg.MaxSize {
		return reject(ErrFileTooLarge,
			"File size %d bytes exceeds maximum allowed size of %d bytes", size, v.cfg.MaxSize)
	}
	if size < v.cfg.MinSize {
		return reject(ErrFileTooSmall,
			"File size %d bytes is below minimum size of %d bytes", size, v.cfg.MinSize)
	}
	return nil
}

// CheckSignature verifies that body begins with the magic bytes of format.
func CheckSignature(format Format, body io.ReaderAt) error {
	header := make([]byte, headerSize)
	n, err := body.ReadAt(header, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "read file header")
	}
	if !format.Match(header[:n]) {
		return reject(ErrSignatureMismatch, "File content does not match expected image format %s", format.MIME)
	}
	return nil
}

func (v *Validator) checkDimensions(f File) error {
	width, height, err := v.dims.Dimensions(io.NewSectionReader(f.Body, 0, f.Size))
	if err != nil {
		return reject(ErrUnreadableImage, "Invalid image file")
	}
	if width > v.cfg.MaxWidth || height > v.cfg.MaxHeight {
		return reject(ErrDimensionsExceeded,
			"Image dimensions %dx%d exceed maximum allowed %dx%d", width, height, v.cfg.MaxWidth, v.cfg.MaxHeight)
	}
	return nil
}

func (v *Validator) allowedTypes() []string {
	out := make([]string, len(v.formats))
	for i, f := range v.formats {
		out[i] = f.MIME
	}
	sort.Strings(out)
	return out
}

// normalizeMIME lowercases the media type and drops parameters.
func normalizeMIME(contentType string) string {
	mime, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mime))
}
