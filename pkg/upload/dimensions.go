package upload

import (
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"

	_ "golang.org/x/image/webp" // register WebP decoder
)

// DimensionReader reports the pixel dimensions of an encoded image.
// Environments without an image decoder simply do not configure one.
type DimensionReader interface {
	Dimensions(r io.Reader) (width, height int, err error)
}

// DimensionReaderFunc adapts a function to DimensionReader.
type DimensionReaderFunc func(r io.Reader) (int, int, error)

// Dimensions implements DimensionReader.
func (f DimensionReaderFunc) Dimensions(r io.Reader) (int, int, error) {
	return f(r)
}

// ImageConfigReader reads dimensions from the image header only, without
// decoding pixel data.
type ImageConfigReader struct{}

// Dimensions implements DimensionReader.
func (ImageConfigReader) Dimensions(r io.Reader) (int, int, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
