package color

import (
	"fmt"
	"math"
)

// Mode selects how Blend combines two colors.
type Mode uint8

const (
	ModeBlend Mode = iota
	ModeAdd
	ModeSub
)

// String returns the config name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeBlend:
		return "blend"
	case ModeAdd:
		return "add"
	case ModeSub:
		return "sub"
	default:
		return "unknown"
	}
}

// Op is a compositing operator with an unclamped factor.
type Op struct {
	Mode   Mode
	Factor float64
}

// Replace is the default operator: Blend(1.0), full replacement.
var Replace = Op{Mode: ModeBlend, Factor: 1}

// Blend returns an interpolating operator.
func Blend(f float64) Op { return Op{Mode: ModeBlend, Factor: f} }

// Add returns an additive operator.
func Add(f float64) Op { return Op{Mode: ModeAdd, Factor: f} }

// Sub returns a subtractive operator.
func Sub(f float64) Op { return Op{Mode: ModeSub, Factor: f} }

func (o Op) String() string {
	return fmt.Sprintf("%s(%g)", o.Mode, o.Factor)
}

// Blend combines c with other under op. The arithmetic happens in other's
// color space: c is converted first, and the result is in that space.
//
// Add and Sub clamp only at the upper bound (1.0) for RGB channels and for
// saturation/value. Add wraps hue on overflow, Sub on underflow.
func (c Color) Blend(other Color, op Op) Color {
	f := op.Factor
	if other.Space == SpaceHSV {
		a, b := c.HSV(), other.C
		switch op.Mode {
		case ModeAdd:
			h := a[0] + b[0]*f
			for h >= 360 {
				h -= 360
			}
			return HSV(h, math.Min(a[1]+b[1]*f, 1), math.Min(a[2]+b[2]*f, 1))
		case ModeSub:
			h := a[0] - b[0]*f
			for h < 0 {
				h += 360
			}
			return HSV(h, math.Min(a[1]-b[1]*f, 1), math.Min(a[2]-b[2]*f, 1))
		default:
			return HSV(lerpHue(a[0], b[0], f), lerp(a[1], b[1], f), lerp(a[2], b[2], f))
		}
	}

	a, b := c.RGB(), other.C
	var out [3]float64
	for i := range out {
		switch op.Mode {
		case ModeAdd:
			out[i] = math.Min(a[i]+b[i]*f, 1)
		case ModeSub:
			out[i] = math.Min(a[i]-b[i]*f, 1)
		default:
			out[i] = lerp(a[i], b[i], f)
		}
	}
	return Color{Space: SpaceRGB, C: out}
}

func lerp(a, b, f float64) float64 {
	return a*(1-f) + b*f
}

// lerpHue interpolates along the shorter arc of the hue circle.
func lerpHue(from, to, f float64) float64 {
	if f == 1 {
		return wrapHue(to)
	}
	switch d := to - from; {
	case d > 180:
		to -= 360
	case d < -180:
		to += 360
	}
	return wrapHue(lerp(from, to, f))
}
