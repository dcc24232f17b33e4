// Package effect renders declarative animations into LED strips, one frame
// per control-loop tick.
package effect

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/dokzlo13/hidlight/internal/color"
	"github.com/dokzlo13/hidlight/internal/device"
)

// Effect is one of the seven animation kinds. Every variant writes LEDs
// only through color.Color.Blend with its own Op.
type Effect interface {
	// Animated reports whether the effect can change from one frame to the
	// next with no other input changing.
	Animated() bool

	render(strip *device.Strip, probes []device.Probe, indices []int, frame uint64)
}

// Apply renders e onto the LEDs of strip selected by indices. The strip is
// grown first so every index is addressable. frame is the global tick
// counter.
func Apply(e Effect, strip *device.Strip, probes []device.Probe, indices []int, frame uint64) {
	if len(indices) == 0 {
		return
	}
	strip.Grow(slices.Max(indices) + 1)
	e.render(strip, probes, indices, frame)
}

// Static blends every LED toward one color.
type Static struct {
	Color color.Color
	Op    color.Op
}

// Gradient blends LED i of n toward lerp(From, To, i/(n-1)). A single
// LED gets From.
type Gradient struct {
	From color.Color
	To   color.Color
	Op   color.Op
}

// Noise blends every LED toward an independently drawn random HSV color.
// All three components are drawn uniformly in [0,1), hue included.
type Noise struct {
	Op color.Op
}

// noiseSource draws the random components of Noise.
var noiseSource = rand.Float64

// Temperature maps a probe reading onto a color ramp. A missing reading is
// treated as MaxTemperature.
type Temperature struct {
	Sensor         int
	MinTemperature float64
	MaxTemperature float64
	MinColor       color.Color
	MaxColor       color.Color
	Op             color.Op
}

// Wave moves a comet of Length LEDs across the indices, one LED every
// FramesPerLED ticks, fully entering and leaving before it repeats.
type Wave struct {
	FramesPerLED int
	Length       int
	Colors       []color.Color
	Op           color.Op
}

// Rotation spins a gradient through Colors across all indices, one full
// turn every Duration ticks.
type Rotation struct {
	Duration int
	Colors   []color.Color
	Reverse  bool
	Op       color.Op
}

// Pattern maps palette entries to LEDs in discrete steps. It advances one
// step every FramesPerLED ticks, or never when FramesPerLED is zero.
type Pattern struct {
	FramesPerLED int
	Colors       []color.Color
	Reverse      bool
	Op           color.Op
}

func (Static) Animated() bool      { return false }
func (Gradient) Animated() bool    { return false }
func (Noise) Animated() bool       { return true }
func (Temperature) Animated() bool { return true }
func (Wave) Animated() bool        { return true }
func (Rotation) Animated() bool    { return true }
func (p Pattern) Animated() bool   { return p.FramesPerLED > 0 }

func blendInto(strip *device.Strip, led int, c color.Color, op color.Op) {
	strip.Colors[led] = strip.Colors[led].Blend(c, op)
}

func (e Static) render(strip *device.Strip, _ []device.Probe, indices []int, _ uint64) {
	for _, led := range indices {
		blendInto(strip, led, e.Color, e.Op)
	}
}

func (e Gradient) render(strip *device.Strip, _ []device.Probe, indices []int, _ uint64) {
	n := len(indices)
	for i, led := range indices {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		blendInto(strip, led, e.From.Blend(e.To, color.Blend(t)), e.Op)
	}
}

func (e Noise) render(strip *device.Strip, _ []device.Probe, indices []int, _ uint64) {
	for _, led := range indices {
		blendInto(strip, led, color.HSV(noiseSource(), noiseSource(), noiseSource()), e.Op)
	}
}

func (e Temperature) render(strip *device.Strip, probes []device.Probe, indices []int, _ uint64) {
	temp, ok := device.ProbeAt(probes, e.Sensor)
	if !ok {
		temp = e.MaxTemperature
	}

	var x float64
	if span := e.MaxTemperature - e.MinTemperature; span > 0 {
		x = math.Max(math.Min(temp, e.MaxTemperature)-e.MinTemperature, 0) / span
	} else if temp >= e.MaxTemperature {
		x = 1
	}

	c := e.MinColor.Blend(e.MaxColor, color.Blend(x))
	for _, led := range indices {
		blendInto(strip, led, c, e.Op)
	}
}

func (e Wave) render(strip *device.Strip, _ []device.Probe, indices []int, frame uint64) {
	if len(e.Colors) == 0 || e.Length <= 0 {
		return
	}
	fpl := uint64(max(e.FramesPerLED, 1))
	cycle := uint64(len(indices) + 2*e.Length)
	progress := int((frame / fpl) % cycle)

	last := len(e.Colors) - 1
	for i := 0; i < e.Length; i++ {
		pos := progress + i - e.Length
		if pos < 0 || pos >= len(indices) {
			continue
		}
		x := float64(i) / float64(e.Length) * float64(len(e.Colors))
		lower := min(int(math.Floor(x)), last)
		upper := min(int(math.Ceil(x)), last)
		_, frac := math.Modf(x)
		c := e.Colors[lower].Blend(e.Colors[upper], color.Blend(frac))
		blendInto(strip, indices[pos], c, e.Op)
	}
}

func (e Rotation) render(strip *device.Strip, _ []device.Probe, indices []int, frame uint64) {
	if len(e.Colors) == 0 {
		return
	}
	d := uint64(max(e.Duration, 1))
	var progress float64
	if e.Reverse {
		progress = float64(d-frame%d) / float64(d)
	} else {
		progress = float64(frame%d) / float64(d)
	}

	n := len(indices)
	k := len(e.Colors)
	for i, led := range indices {
		_, phase := math.Modf(progress + float64(i)/float64(n))
		x := phase * float64(k-1)
		lower := int(math.Floor(x)) % k
		upper := int(math.Ceil(x)) % k
		_, frac := math.Modf(x)
		blendInto(strip, led, e.Colors[lower].Blend(e.Colors[upper], color.Blend(frac)), e.Op)
	}
}

func (e Pattern) render(strip *device.Strip, _ []device.Probe, indices []int, frame uint64) {
	k := len(e.Colors)
	if k == 0 {
		return
	}
	progress := 0
	if e.FramesPerLED > 0 {
		progress = int((frame / uint64(e.FramesPerLED)) % uint64(k))
	}

	n := len(indices)
	for i := range indices {
		led := indices[n-1-i]
		if e.Reverse {
			led = indices[i]
		}
		blendInto(strip, led, e.Colors[(progress+i)%k], e.Op)
	}
}
