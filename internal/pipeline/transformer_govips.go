//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

// govipsTranscoder decodes through libvips, which covers HEIF, AVIF and the
// other containers the pure Go decoders lack. Colour math and encoding are shared.
type govipsTranscoder struct {
	quality   int
	maxPixels int64
}

func (t govipsTranscoder) Transcode(ctx context.Context, input []byte) (Output, error) {
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	default:
	}

	if len(input) == 0 {
		return Output{}, fmt.Errorf("%w: empty input", ErrInvalidImage)
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	defer img.Close()

	if err := checkPixelLimit(img.Width(), img.Height(), t.maxPixels); err != nil {
		return Output{}, err
	}

	if err := img.AutoRotate(); err != nil {
		return Output{}, fmt.Errorf("autorotate image: %w", err)
	}
	if err := img.ToColorSpace(vips.InterpretationSRGB); err != nil {
		return Output{}, fmt.Errorf("convert to srgb: %w", err)
	}

	decoded, err := img.ToImage(vips.NewDefaultExportParams())
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if decoded.Bounds().Empty() {
		return Output{}, fmt.Errorf("%w: image has no pixels", ErrInvalidImage)
	}

	return shiftAndEncode(ctx, flattenOpaque(decoded), sourceFormat(input), t.quality)
}

func sourceFormat(input []byte) string {
	switch vips.DetermineImageType(input) {
	case vips.ImageTypeJPEG:
		return "jpeg"
	case vips.ImageTypePNG:
		return "png"
	case vips.ImageTypeWEBP:
		return "webp"
	case vips.ImageTypeGIF:
		return "gif"
	case vips.ImageTypeTIFF:
		return "tiff"
	case vips.ImageTypeBMP:
		return "bmp"
	case vips.ImageTypeHEIF:
		return "heif"
	case vips.ImageTypeAVIF:
		return "avif"
	default:
		return "unknown"
	}
}
