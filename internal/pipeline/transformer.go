package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
)

var (
	ErrInvalidImage  = errors.New("invalid image")
	ErrImageTooLarge = errors.New("image too large")
)

// Output is one transcoded image.
type Output struct {
	Data         []byte
	ContentType  string
	SourceFormat string
	Width        int
	Height       int
}

// Pixels is the number of pixels in the transcoded grid.
func (o Output) Pixels() int64 {
	return int64(o.Width) * int64(o.Height)
}

// Transcoder decodes raw image bytes, rotates the hue and re-encodes as JPEG.
// Implementations hold no per-call state and are safe for concurrent use.
type Transcoder interface {
	Transcode(ctx context.Context, input []byte) (Output, error)
}

type Options struct {
	JPEGQuality int
	// MaxPixels caps width*height of accepted images. Zero means DefaultMaxPixels.
	MaxPixels int64
}

// NewTranscoder returns the codec backend selected at build time.
func NewTranscoder(opts Options) (Transcoder, error) {
	if opts.JPEGQuality < 0 || opts.JPEGQuality > 100 {
		return nil, fmt.Errorf("jpeg quality must be within 1..100, got %d", opts.JPEGQuality)
	}
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	if opts.MaxPixels < 0 {
		return nil, fmt.Errorf("max pixels must not be negative, got %d", opts.MaxPixels)
	}
	if opts.MaxPixels == 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	return newTranscoder(opts)
}

// shiftAndEncode runs the colour stages shared by every backend.
func shiftAndEncode(ctx context.Context, src *image.NRGBA, format string, quality int) (Output, error) {
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	default:
	}

	shifted := RotateHue(src, HueShift)

	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	default:
	}

	data, err := encodeJPEG(shifted, quality)
	if err != nil {
		return Output{}, err
	}

	bounds := shifted.Bounds()
	return Output{
		Data:         data,
		ContentType:  ContentTypeJPEG,
		SourceFormat: format,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
	}, nil
}
