package pipeline

import (
	"context"
)

type stdlibTranscoder struct {
	quality   int
	maxPixels int64
}

func (t stdlibTranscoder) Transcode(ctx context.Context, input []byte) (Output, error) {
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	default:
	}

	src, format, err := decodeImage(input, t.maxPixels)
	if err != nil {
		return Output{}, err
	}

	return shiftAndEncode(ctx, src, format, t.quality)
}
