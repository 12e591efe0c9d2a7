package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	ContentTypeJPEG    = "image/jpeg"
	DefaultJPEGQuality = 95
	// DefaultMaxPixels bounds the decoded grid; each full-size copy costs 4 bytes per pixel.
	DefaultMaxPixels = 50_000_000
)

// decodeImage decodes any registered container and applies EXIF orientation.
// The returned grid is opaque. Images declaring more than maxPixels are
// rejected from the header alone, before any pixel buffer is allocated.
func decodeImage(input []byte, maxPixels int64) (*image.NRGBA, string, error) {
	if len(input) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", ErrInvalidImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if err := checkPixelLimit(cfg.Width, cfg.Height, maxPixels); err != nil {
		return nil, format, err
	}

	img, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, fmt.Errorf("%w: decode %s: %v", ErrInvalidImage, format, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, format, fmt.Errorf("%w: image has no pixels", ErrInvalidImage)
	}

	return flattenOpaque(img), format, nil
}

func checkPixelLimit(width, height int, maxPixels int64) error {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if pixels := int64(width) * int64(height); pixels > maxPixels {
		return fmt.Errorf("%w: %dx%d is %d pixels, limit %d", ErrImageTooLarge, width, height, pixels, maxPixels)
	}
	return nil
}

// flattenOpaque drops the alpha channel, keeping the straight colour values.
func flattenOpaque(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
