package corsair

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hidlight/internal/device"
	"github.com/dokzlo13/hidlight/internal/hid"
)

// FanMode is the fan connection type reported by the controller.
type FanMode uint8

const (
	FanOff FanMode = iota
	FanDC
	FanPWM
)

func (m FanMode) String() string {
	switch m {
	case FanDC:
		return "dc"
	case FanPWM:
		return "pwm"
	default:
		return "off"
	}
}

func fanModeFromByte(b byte) FanMode {
	switch b {
	case fanModeDC:
		return FanDC
	case fanModePWM:
		return FanPWM
	default:
		return FanOff
	}
}

// Lighting is a Corsair lighting/fan controller. Fan modes and probe
// presence are detected by Initialize and not re-queried until the next
// Initialize.
type Lighting struct {
	name string
	link link

	fans        []device.Fan
	fansDirty   bool
	strips      []device.Strip
	stripsDirty bool

	probes     []device.Probe
	fanModes   []FanMode
	rpms       []uint16
	nextSample int
}

var _ device.Device = (*Lighting)(nil)

func newLighting(name string, t hid.Transport, fans, probes, channels int) *Lighting {
	l := &Lighting{
		name:        name,
		link:        link{t: t},
		fans:        make([]device.Fan, fans),
		fansDirty:   true,
		strips:      make([]device.Strip, channels),
		stripsDirty: true,
		probes:      make([]device.Probe, probes),
		fanModes:    make([]FanMode, fans),
		rpms:        make([]uint16, fans),
	}
	for i := range l.fans {
		l.fans[i] = device.DefaultFan
	}
	return l
}

// NewCommanderPro returns a Commander PRO: 6 fans, 4 probes, 2 LED channels.
func NewCommanderPro(t hid.Transport) *Lighting {
	return newLighting("Commander PRO", t, 6, 4, 2)
}

// NewLightingNodeCore returns a Lighting Node CORE: 1 LED channel.
func NewLightingNodeCore(t hid.Transport) *Lighting {
	return newLighting("Lighting Node CORE", t, 0, 0, 1)
}

func (l *Lighting) Name() string { return l.name }

func (l *Lighting) LEDOnly() bool {
	return len(l.fans) == 0 && len(l.probes) == 0
}

func (l *Lighting) Fans() []device.Fan {
	l.fansDirty = true
	return l.fans
}

func (l *Lighting) Strips() []device.Strip {
	l.stripsDirty = true
	return l.strips
}

func (l *Lighting) Probes() []device.Probe { return l.probes }

// RPMs returns the last sampled fan speeds.
func (l *Lighting) RPMs() []uint16 { return l.rpms }

// FanModes returns the connection type of every fan channel.
func (l *Lighting) FanModes() []FanMode { return l.fanModes }

func (l *Lighting) Initialize() error {
	if err := l.link.drain(); err != nil {
		return err
	}
	fw, err := l.link.request(cmdGetFirmware)
	if err != nil {
		return fmt.Errorf("firmware version: %w", err)
	}
	bl, err := l.link.request(cmdGetBootloader)
	if err != nil {
		return fmt.Errorf("bootloader version: %w", err)
	}

	if len(l.probes) > 0 {
		cfg, err := l.link.request(cmdGetTempConfig)
		if err != nil {
			return fmt.Errorf("temperature config: %w", err)
		}
		for i := range l.probes {
			l.probes[i] = device.Probe{}
			if cfg[i+1] == 0 {
				continue
			}
			temp, err := l.temp(i)
			if err != nil {
				return fmt.Errorf("probe %d: %w", i, err)
			}
			l.probes[i] = device.Reading(temp)
		}
	}

	if len(l.fans) > 0 {
		modes, err := l.link.request(cmdGetFanModes)
		if err != nil {
			return fmt.Errorf("fan modes: %w", err)
		}
		for i := range l.fanModes {
			l.fanModes[i] = fanModeFromByte(modes[i+1])
		}
	}

	for i := range l.strips {
		if err := l.resetChannel(byte(i)); err != nil {
			return fmt.Errorf("reset led channel %d: %w", i, err)
		}
	}

	log.Info().
		Str("device", l.name).
		Str("firmware", fmt.Sprintf("%d.%d.%d", fw[1], fw[2], fw[3])).
		Str("bootloader", fmt.Sprintf("%d.%d", bl[1], bl[2])).
		Interface("temperatures", probeValues(l.probes)).
		Stringers("fan_modes", fanModeStringers(l.fanModes)).
		Msg("Device initialized")

	l.nextSample = 0
	l.fansDirty = true
	l.stripsDirty = true
	return nil
}

// resetChannel hands a channel back to the built-in rainbow animation, the
// visible fallback until software takes over.
func (l *Lighting) resetChannel(ch byte) error {
	steps := []struct {
		cmd     byte
		payload []byte
	}{
		{cmdLEDResetChannel, []byte{ch}},
		{cmdLEDBeginEffect, []byte{ch}},
		{cmdLEDSetChannelState, []byte{ch, ledPortStateHardware}},
		{cmdLEDEffect, []byte{ch, 0, ledMaxPerChannel, ledEffectRainbowWave, ledSpeedMedium, ledDirectionForward, 0x01, 0xff}},
		{cmdLEDCommit, []byte{ch}},
	}
	for _, s := range steps {
		if err := l.link.send(s.cmd, s.payload); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lighting) temp(i int) (float64, error) {
	res, err := l.link.request(cmdGetTemp, byte(i))
	if err != nil {
		return 0, err
	}
	return decodeTemp(res), nil
}

func (l *Lighting) rpm(i int) (uint16, error) {
	res, err := l.link.request(cmdGetFanRPM, byte(i))
	if err != nil {
		return 0, err
	}
	return decodeRPM(res), nil
}

// Update drains stale input, refreshes exactly one telemetry value in
// round-robin order, then flushes dirty fan and LED state.
func (l *Lighting) Update() error {
	if err := l.link.drain(); err != nil {
		return err
	}
	if err := l.sample(); err != nil {
		return err
	}

	if l.fansDirty {
		if err := l.pushFans(); err != nil {
			return fmt.Errorf("push fans: %w", err)
		}
		l.fansDirty = false
	}
	if l.stripsDirty {
		if err := l.pushStrips(); err != nil {
			return fmt.Errorf("push leds: %w", err)
		}
		l.stripsDirty = false
	}
	return nil
}

// sample walks every eligible metric (present probes, then connected fans)
// and refreshes the one the rotating pointer selects.
func (l *Lighting) sample() error {
	current := 0
	for i := range l.probes {
		if !l.probes[i].Valid {
			continue
		}
		if current == l.nextSample {
			temp, err := l.temp(i)
			if err != nil {
				return fmt.Errorf("probe %d: %w", i, err)
			}
			if temp <= 0 {
				temp = 100
			}
			l.probes[i] = device.Reading(temp)
		}
		current++
	}

	for i, mode := range l.fanModes {
		if mode == FanOff {
			l.rpms[i] = 0
			continue
		}
		if current == l.nextSample {
			rpm, err := l.rpm(i)
			if err != nil {
				return fmt.Errorf("fan %d: %w", i, err)
			}
			l.rpms[i] = rpm
		}
		current++
	}

	if current > 0 {
		l.nextSample = (l.nextSample + 1) % current
	}
	return nil
}

func (l *Lighting) pushFans() error {
	for i, f := range l.fans {
		ch := byte(i)
		switch f := f.(type) {
		case device.PWM:
			if err := l.link.send(cmdSetFanDuty, []byte{ch, dutyPercent(f.Duty)}); err != nil {
				return err
			}
		case device.RPM:
			curve := device.Curve{Sensor: 0}
			for j := range curve.Points {
				curve.Points[j] = device.CurvePoint{Temp: 0, RPM: f.Target}
			}
			if err := l.link.send(cmdSetFanProfile, encodeCurve(ch, curve)); err != nil {
				return err
			}
		case device.Curve:
			if err := l.link.send(cmdSetFanProfile, encodeCurve(ch, f)); err != nil {
				return err
			}
		}
	}
	return nil
}

// encodeCurve packs channel, sensor, six temperatures (x100) and six
// speeds, all 16-bit big-endian.
func encodeCurve(ch byte, c device.Curve) []byte {
	buf := make([]byte, 2+4*device.CurvePoints)
	buf[0] = ch
	buf[1] = byte(c.Sensor)
	for j, p := range c.Points {
		putU16(buf[2+j*2:], centi(p.Temp))
		putU16(buf[2+2*device.CurvePoints+j*2:], p.RPM)
	}
	return buf
}

func dutyPercent(duty float64) byte {
	v := duty * 100
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 100:
		return 100
	default:
		return byte(v)
	}
}

func centi(temp float64) uint16 {
	v := temp * 100
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(v)
	}
}

// pushStrips uploads every non-empty channel in 50-LED chunks, one write
// per color component, then commits the channel. LEDs past the channel
// limit are not sent.
func (l *Lighting) pushStrips() error {
	for i, strip := range l.strips {
		if len(strip.Colors) == 0 {
			continue
		}
		ch := byte(i)
		if err := l.link.send(cmdLEDSetChannelState, []byte{ch, ledPortStateSoftware}); err != nil {
			return err
		}

		colors := strip.Colors[:min(len(strip.Colors), int(ledMaxPerChannel))]
		start := 0
		for start < len(colors) {
			end := min(start+ledChunk, len(colors))
			chunk := colors[start:end]

			buf := make([]byte, 4+len(chunk))
			buf[0] = ch
			buf[1] = byte(start)
			buf[2] = byte(len(chunk))
			for comp := 0; comp < 3; comp++ {
				buf[3] = byte(comp)
				for j, c := range chunk {
					buf[4+j] = c.Bytes()[comp]
				}
				if err := l.link.send(cmdLEDDirect, buf); err != nil {
					return err
				}
			}
			start = end
		}

		if err := l.link.send(cmdLEDCommit, []byte{ch}); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lighting) ReportStatus() {
	log.Info().
		Str("device", l.name).
		Interface("temperatures", probeValues(l.probes)).
		Interface("fan_rpm", l.rpms).
		Msg("Device status")
}

// probeValues renders a snapshot for logging, nil for absent probes.
func probeValues(probes []device.Probe) []any {
	out := make([]any, len(probes))
	for i, p := range probes {
		if p.Valid {
			out[i] = math.Round(p.Temp*100) / 100
		}
	}
	return out
}

func fanModeStringers(modes []FanMode) []fmt.Stringer {
	out := make([]fmt.Stringer, len(modes))
	for i, m := range modes {
		out[i] = m
	}
	return out
}
