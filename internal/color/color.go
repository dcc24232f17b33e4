// Package color implements the RGB/HSV color model and the blend operators
// every effect composites through.
package color

import "math"

// Space identifies the representation a Color is stored in.
type Space uint8

const (
	SpaceRGB Space = iota
	SpaceHSV
)

// String returns the lowercase name of the color space.
func (s Space) String() string {
	switch s {
	case SpaceRGB:
		return "rgb"
	case SpaceHSV:
		return "hsv"
	default:
		return "unknown"
	}
}

// Color is either an RGB triple (components in [0,1]) or an HSV triple
// (hue in [0,360), saturation and value in [0,1]).
type Color struct {
	Space Space
	C     [3]float64
}

// Black is RGB black, the default for new strip slots.
var Black = RGB(0, 0, 0)

// RGB builds an RGB color.
func RGB(r, g, b float64) Color {
	return Color{Space: SpaceRGB, C: [3]float64{r, g, b}}
}

// HSV builds an HSV color.
func HSV(h, s, v float64) Color {
	return Color{Space: SpaceHSV, C: [3]float64{h, s, v}}
}

// RGB returns the color as an RGB triple, converting from HSV when needed.
func (c Color) RGB() [3]float64 {
	if c.Space == SpaceRGB {
		return c.C
	}
	return hsvToRGB(c.C[0], c.C[1], c.C[2])
}

// HSV returns the color as an HSV triple, converting from RGB when needed.
func (c Color) HSV() [3]float64 {
	if c.Space == SpaceHSV {
		return c.C
	}
	return rgbToHSV(c.C[0], c.C[1], c.C[2])
}

// In returns c converted into the given space.
func (c Color) In(space Space) Color {
	if space == SpaceHSV {
		return Color{Space: SpaceHSV, C: c.HSV()}
	}
	return Color{Space: SpaceRGB, C: c.RGB()}
}

// Bytes returns the RGB components scaled to 0..255, saturating at both ends.
func (c Color) Bytes() [3]byte {
	rgb := c.RGB()
	var out [3]byte
	for i, v := range rgb {
		out[i] = toByte(v)
	}
	return out
}

func toByte(v float64) byte {
	v *= 255
	switch {
	case v != v || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v)
	}
}

func hsvToRGB(h, s, v float64) [3]float64 {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return [3]float64{clamp01(r + m), clamp01(g + m), clamp01(b + m)}
}

// rgbToHSV uses the max/min channel method. Hue is 0 when undefined
// (black or grey).
func rgbToHSV(r, g, b float64) [3]float64 {
	lo := math.Min(r, math.Min(g, b))
	hi := math.Max(r, math.Max(g, b))

	v := hi
	if v == 0 {
		return [3]float64{0, 0, v}
	}
	d := hi - lo
	s := d / v
	if s == 0 {
		return [3]float64{0, 0, v}
	}

	var h float64
	switch hi {
	case r:
		h = 60 * (g - b) / d
	case g:
		h = 120 + 60*(b-r)/d
	default:
		h = 240 + 60*(r-g)/d
	}
	return [3]float64{wrapHue(h), s, v}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func wrapHue(h float64) float64 {
	for h < 0 {
		h += 360
	}
	for h >= 360 {
		h -= 360
	}
	return h
}
