// Package device defines the capability set every controllable lighting or
// fan device implements, and the in-memory state the control loop mutates.
package device

import "github.com/dokzlo13/hidlight/internal/color"

// Device is a controllable device. The control loop depends only on this
// interface; concrete families live in their own packages.
type Device interface {
	// Initialize queries identity, detects probes and fan modes and puts the
	// device into a known state. It fails on transport errors.
	Initialize() error

	// LEDOnly reports whether the device has neither fans nor probes.
	LEDOnly() bool

	Name() string

	// Fans and Strips give mutable access to the device state. Any call
	// marks that state dirty so the next Update flushes it.
	Fans() []Fan
	Strips() []Strip

	// Probes returns the latest temperature snapshot.
	Probes() []Probe

	// ReportStatus logs current telemetry.
	ReportStatus()

	// Update runs one control-loop tick against the hardware: sample one
	// telemetry value and flush dirty state.
	Update() error
}

// Tachometer is implemented by devices that expose fan speeds.
type Tachometer interface {
	RPMs() []uint16
}

// Probe is one temperature reading. Valid is false when the sensor is not
// connected or has no reading yet.
type Probe struct {
	Temp  float64
	Valid bool
}

// Reading returns a valid probe.
func Reading(temp float64) Probe {
	return Probe{Temp: temp, Valid: true}
}

// ProbeAt returns the reading at index i of a snapshot.
func ProbeAt(probes []Probe, i int) (float64, bool) {
	if i < 0 || i >= len(probes) || !probes[i].Valid {
		return 0, false
	}
	return probes[i].Temp, true
}

// MaxStripLEDs is the number of LEDs a channel can address.
const MaxStripLEDs = 204

// Strip is the color buffer of one LED channel; index 0 is the first
// physical LED.
type Strip struct {
	Colors []color.Color
}

// Grow extends the strip with black LEDs so that it holds at least n
// colors. Strips never shrink.
func (s *Strip) Grow(n int) {
	for len(s.Colors) < n {
		s.Colors = append(s.Colors, color.Black)
	}
}
