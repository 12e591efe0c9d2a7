package pipeline

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/clone"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	// HueRange is the number of hue steps in the 8-bit HSV encoding, two degrees per step.
	HueRange = 180
	// HueShift is the fixed rotation applied to every pixel, in hue steps (120 degrees).
	HueShift = 60
)

// HSV8 is a pixel in 8-bit HSV form. H is in [0, HueRange), S and V in [0, 255].
type HSV8 struct {
	H uint8
	S uint8
	V uint8
}

// ToHSV8 converts an 8-bit RGB triple to 8-bit HSV with hue halved into [0, HueRange).
func ToHSV8(r, g, b uint8) HSV8 {
	c := colorful.Color{
		R: float64(r) / 255,
		G: float64(g) / 255,
		B: float64(b) / 255,
	}
	h, s, v := c.Hsv()

	return HSV8{
		H: uint8(int(math.Round(h/2)) % HueRange),
		S: uint8(math.Round(s * 255)),
		V: uint8(math.Round(v * 255)),
	}
}

// RGB converts p back to 8-bit RGB, reading H as 2*H degrees.
func (p HSV8) RGB() (r, g, b uint8) {
	return colorful.Hsv(float64(p.H)*2, float64(p.S)/255, float64(p.V)/255).Clamped().RGB255()
}

// ShiftHue adds shift to h in 16-bit space before reducing, so h+shift never wraps a byte.
func ShiftHue(h uint8, shift uint16) uint8 {
	return uint8((uint16(h) + shift) % HueRange)
}

func rotatePixel(c color.RGBA, shift uint16) color.RGBA {
	hsv := ToHSV8(c.R, c.G, c.B)
	hsv.H = ShiftHue(hsv.H, shift)
	r, g, b := hsv.RGB()
	return color.RGBA{R: r, G: g, B: b, A: c.A}
}

// RotateHue returns a copy of img with every pixel's hue advanced by shift steps.
// img is expected to be opaque; see flattenOpaque. Pixels are visited in
// row-major order on the calling goroutine.
func RotateHue(img image.Image, shift uint16) *image.RGBA {
	shift %= HueRange
	dst := clone.AsRGBA(img)
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		c := rotatePixel(color.RGBA{R: dst.Pix[i], G: dst.Pix[i+1], B: dst.Pix[i+2], A: dst.Pix[i+3]}, shift)
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2] = c.R, c.G, c.B
	}
	return dst
}
