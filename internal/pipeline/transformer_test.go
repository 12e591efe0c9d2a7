package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func TestTranscodeRedPNGBecomesGreen(t *testing.T) {
	transcoder := newTestTranscoder(t)

	out, err := transcoder.Transcode(context.Background(), buildSolidPNG(t, 2, 2, color.NRGBA{R: 255, A: 255}))
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}
	if out.ContentType != ContentTypeJPEG {
		t.Fatalf("expected content type %s, got %s", ContentTypeJPEG, out.ContentType)
	}
	if out.SourceFormat != "png" {
		t.Fatalf("expected source format png, got %s", out.SourceFormat)
	}

	img := decodeJPEG(t, out.Data)
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Fatalf("expected 2x2 output, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}

	forEachPixel(img, func(x, y int, c color.NRGBA) {
		hsv := ToHSV8(c.R, c.G, c.B)
		if hsv.H < 57 || hsv.H > 63 {
			t.Fatalf("pixel (%d,%d) hue %d, want about 60", x, y, hsv.H)
		}
		if hsv.S < 235 || hsv.V < 235 {
			t.Fatalf("pixel (%d,%d) lost saturation or value: %+v", x, y, hsv)
		}
	})
}

func TestTranscodePreservesDimensions(t *testing.T) {
	transcoder := newTestTranscoder(t)

	out, err := transcoder.Transcode(context.Background(), buildGradientPNG(t, 37, 23))
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}
	if out.Width != 37 || out.Height != 23 {
		t.Fatalf("expected reported size 37x23, got %dx%d", out.Width, out.Height)
	}
	if out.Pixels() != 37*23 {
		t.Fatalf("expected %d pixels, got %d", 37*23, out.Pixels())
	}

	img := decodeJPEG(t, out.Data)
	if img.Bounds().Dx() != 37 || img.Bounds().Dy() != 23 {
		t.Fatalf("expected decoded size 37x23, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestTranscodeThreeTimesReturnsToSource(t *testing.T) {
	transcoder := newTestTranscoder(t)

	data := buildSolidPNG(t, 8, 8, color.NRGBA{R: 255, A: 255})
	for i := 0; i < 3; i++ {
		out, err := transcoder.Transcode(context.Background(), data)
		if err != nil {
			t.Fatalf("transcode pass %d: %v", i+1, err)
		}
		data = out.Data
	}

	forEachPixel(decodeJPEG(t, data), func(x, y int, c color.NRGBA) {
		if c.R < 225 || c.G > 30 || c.B > 30 {
			t.Fatalf("pixel (%d,%d) = %+v after three passes, want about red", x, y, c)
		}
	})
}

func TestTranscodeAcceptsJPEGInput(t *testing.T) {
	transcoder := newTestTranscoder(t)

	src := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			src.SetRGBA(x, y, color.RGBA{B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode source jpeg: %v", err)
	}

	out, err := transcoder.Transcode(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}
	if out.SourceFormat != "jpeg" {
		t.Fatalf("expected source format jpeg, got %s", out.SourceFormat)
	}

	forEachPixel(decodeJPEG(t, out.Data), func(x, y int, c color.NRGBA) {
		if c.R < 225 || c.G > 30 || c.B > 30 {
			t.Fatalf("pixel (%d,%d) = %+v, want blue rotated to about red", x, y, c)
		}
	})
}

func TestTranscodeIgnoresAlpha(t *testing.T) {
	transcoder := newTestTranscoder(t)

	out, err := transcoder.Transcode(context.Background(), buildSolidPNG(t, 4, 4, color.NRGBA{R: 255, A: 128}))
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}

	forEachPixel(decodeJPEG(t, out.Data), func(x, y int, c color.NRGBA) {
		if c.G < 225 || c.R > 30 || c.B > 30 {
			t.Fatalf("pixel (%d,%d) = %+v, want translucent red rotated to opaque green", x, y, c)
		}
	})
}

func TestTranscodeRejectsUndecodableInput(t *testing.T) {
	transcoder := newTestTranscoder(t)

	truncated := buildSolidPNG(t, 4, 4, color.NRGBA{R: 255, A: 255})
	truncated = truncated[:len(truncated)/2]

	inputs := map[string][]byte{
		"empty":     nil,
		"text":      []byte("definitely not an image"),
		"truncated": truncated,
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := transcoder.Transcode(context.Background(), input)
			if !errors.Is(err, ErrInvalidImage) {
				t.Fatalf("expected ErrInvalidImage, got %v", err)
			}
		})
	}
}

func TestTranscodeHonoursCanceledContext(t *testing.T) {
	transcoder := newTestTranscoder(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := transcoder.Transcode(ctx, buildSolidPNG(t, 2, 2, color.NRGBA{R: 255, A: 255}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewTranscoderRejectsQuality(t *testing.T) {
	if _, err := NewTranscoder(Options{JPEGQuality: 101}); err == nil {
		t.Fatal("expected error for quality 101")
	}
	if _, err := NewTranscoder(Options{JPEGQuality: -1}); err == nil {
		t.Fatal("expected error for negative quality")
	}
}

func TestNewTranscoderRejectsNegativeMaxPixels(t *testing.T) {
	if _, err := NewTranscoder(Options{MaxPixels: -1}); err == nil {
		t.Fatal("expected error for negative max pixels")
	}
}

func TestTranscodeRejectsOversizedHeader(t *testing.T) {
	transcoder := newTestTranscoder(t)

	// Declares 30000x30000 with no pixel data at all.
	input := buildPNGHeader(t, 30000, 30000)
	if len(input) > 64 {
		t.Fatalf("expected a header-only png, got %d bytes", len(input))
	}

	_, err := transcoder.Transcode(context.Background(), input)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
}

func TestTranscodeHonoursMaxPixels(t *testing.T) {
	input := buildSolidPNG(t, 4, 4, color.NRGBA{R: 255, A: 255})

	tight, err := NewTranscoder(Options{MaxPixels: 15})
	if err != nil {
		t.Fatalf("new transcoder: %v", err)
	}
	if _, err := tight.Transcode(context.Background(), input); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge for 16 pixels over a 15 pixel limit, got %v", err)
	}

	exact, err := NewTranscoder(Options{MaxPixels: 16})
	if err != nil {
		t.Fatalf("new transcoder: %v", err)
	}
	if _, err := exact.Transcode(context.Background(), input); err != nil {
		t.Fatalf("expected 16 pixels to fit a 16 pixel limit, got %v", err)
	}
}

func BenchmarkTranscode(b *testing.B) {
	transcoder, err := NewTranscoder(Options{})
	if err != nil {
		b.Fatalf("new transcoder: %v", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 1920, 1080))
	for y := 0; y < 1080; y++ {
		for x := 0; x < 1920; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x * 255) / 1920),
				G: uint8((y * 255) / 1080),
				B: 140,
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		b.Fatalf("encode source png: %v", err)
	}
	source := buf.Bytes()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := transcoder.Transcode(context.Background(), source); err != nil {
			b.Fatalf("transcode: %v", err)
		}
	}
}

func newTestTranscoder(t *testing.T) Transcoder {
	t.Helper()

	transcoder, err := NewTranscoder(Options{})
	if err != nil {
		t.Fatalf("new transcoder: %v", err)
	}
	return transcoder
}

func buildSolidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func buildGradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, data []byte) image.Image {
	t.Helper()

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output jpeg: %v", err)
	}
	return img
}

func forEachPixel(img image.Image, fn func(x, y int, c color.NRGBA)) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			fn(x, y, color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA))
		}
	}
}

// buildPNGHeader returns a PNG signature, IHDR and IEND with no image data.
func buildPNGHeader(t *testing.T, w, h uint32) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	writeChunk := func(kind string, data []byte) {
		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(data)))
		buf.Write(length[:])

		body := append([]byte(kind), data...)
		buf.Write(body)

		var crc [4]byte
		binary.BigEndian.PutUint32(crc[:], crc32.ChecksumIEEE(body))
		buf.Write(crc[:])
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolour
	writeChunk("IHDR", ihdr)
	writeChunk("IEND", nil)

	return buf.Bytes()
}
