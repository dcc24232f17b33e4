// Package manager runs the fixed-cadence control loop: trigger evaluation,
// profile activation, effect rendering, device updates and recovery from
// host suspension.
package manager

import (
	"context"
	"time"

	"github.com/asecurityteam/rolling"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hidlight/internal/device"
	"github.com/dokzlo13/hidlight/internal/eventbus"
	"github.com/dokzlo13/hidlight/internal/profile"
)

// Timing holds the loop constants.
type Timing struct {
	Period         time.Duration
	OverrunBackoff time.Duration
	StallThreshold time.Duration
	StallPause     time.Duration
	ResumePause    time.Duration
	StatusInterval time.Duration
}

// DefaultTiming returns the standard 30ms cadence.
func DefaultTiming() Timing {
	return Timing{
		Period:         30 * time.Millisecond,
		OverrunBackoff: 5 * time.Millisecond,
		StallThreshold: 2 * time.Second,
		StallPause:     5 * time.Second,
		ResumePause:    50 * time.Millisecond,
		StatusInterval: 10 * time.Second,
	}
}

// Publisher receives control-loop events.
type Publisher interface {
	Publish(eventbus.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(eventbus.Event) {}

// Option configures a Manager.
type Option func(*Manager)

func WithClock(c Clock) Option { return func(m *Manager) { m.clock = c } }

func WithPublisher(p Publisher) Option { return func(m *Manager) { m.pub = p } }

func WithTiming(t Timing) Option { return func(m *Manager) { m.timing = t } }

func WithScripts(s profile.ScriptEvaluator) Option {
	return func(m *Manager) { m.scripts = s }
}

func WithProcesses(p profile.ProcessChecker) Option {
	return func(m *Manager) { m.processes = p }
}

// WithHeartbeat registers a callback run after every completed tick.
func WithHeartbeat(fn func()) Option { return func(m *Manager) { m.heartbeat = fn } }

// Manager owns the devices, the profiles and the probe snapshot. All of
// them are touched only from Tick.
type Manager struct {
	devices       []device.Device
	colorProfiles []profile.ColorProfile
	fanProfiles   []profile.FanProfile

	timing    Timing
	clock     Clock
	pub       Publisher
	scripts   profile.ScriptEvaluator
	processes profile.ProcessChecker
	heartbeat func()

	colorCurrent int
	fanCurrent   int
	frame        uint64
	lastUpdate   time.Time
	lastLog      time.Time
	probes       []device.Probe
	failed       []bool
	recoveries   uint64

	latency *rolling.PointPolicy
	status  statusBox
}

// New creates a manager. cfg must already be prepared (indices
// normalized); the devices must be initialized before the first Tick.
func New(devices []device.Device, cfg *profile.Config, opts ...Option) *Manager {
	m := &Manager{
		devices:       devices,
		colorProfiles: cfg.ColorProfiles,
		fanProfiles:   cfg.FanProfiles,
		timing:        DefaultTiming(),
		clock:         realClock{},
		pub:           nopPublisher{},
		processes:     profile.NoProcesses{},
		colorCurrent:  -1,
		fanCurrent:    -1,
		failed:        make([]bool, len(devices)),
	}
	for _, opt := range opts {
		opt(m)
	}
	for i := range m.colorProfiles {
		m.colorProfiles[i].Initialize()
	}

	window := 1
	if m.timing.Period > 0 {
		window = max(int(m.timing.StatusInterval/m.timing.Period), 1)
	}
	m.latency = rolling.NewPointPolicy(rolling.NewWindow(window))

	now := m.clock.Now()
	m.lastUpdate = now
	m.lastLog = now
	return m
}

// Frame returns the global tick counter.
func (m *Manager) Frame() uint64 { return m.frame }

// CurrentColorProfile returns the index of the active color profile, or -1.
func (m *Manager) CurrentColorProfile() int { return m.colorCurrent }

// CurrentFanProfile returns the index of the active fan profile, or -1.
func (m *Manager) CurrentFanProfile() int { return m.fanCurrent }

// Probes returns the probe snapshot flattened across devices.
func (m *Manager) Probes() []device.Probe { return m.probes }

func (m *Manager) env() profile.Env {
	return profile.Env{Probes: m.probes, Processes: m.processes, Scripts: m.scripts}
}

// Run ticks until ctx is done. A tick that finishes early sleeps until its
// deadline; an overrunning tick sleeps OverrunBackoff and restarts the
// schedule from there instead of catching up.
func (m *Manager) Run(ctx context.Context) error {
	log.Info().
		Int("devices", len(m.devices)).
		Int("color_profiles", len(m.colorProfiles)).
		Int("fan_profiles", len(m.fanProfiles)).
		Dur("period", m.timing.Period).
		Msg("Control loop started")

	// Startup time spent between New and Run is not a stall.
	start := m.clock.Now()
	m.lastUpdate = start
	m.lastLog = start

	deadline := start.Add(m.timing.Period)
	for {
		if err := ctx.Err(); err != nil {
			log.Info().Uint64("frame", m.frame).Msg("Control loop stopped")
			return nil
		}

		m.Tick(ctx)

		now := m.clock.Now()
		if now.Before(deadline) {
			if !sleep(ctx, m.clock, deadline.Sub(now)) {
				continue
			}
			deadline = deadline.Add(m.timing.Period)
		} else {
			if !sleep(ctx, m.clock, m.timing.OverrunBackoff) {
				continue
			}
			deadline = m.clock.Now().Add(m.timing.Period)
		}
	}
}

// Tick runs one iteration of the control loop.
func (m *Manager) Tick(ctx context.Context) {
	start := m.clock.Now()
	m.frame++
	env := m.env()

	m.selectColorProfile(env)
	m.applyTransients(env)
	m.selectFanProfile(env)
	m.recoverFromStall(ctx)
	m.updateDevices()

	took := m.clock.Now().Sub(start)
	m.latency.Append(float64(took))
	m.reportStatus()
	m.publishStatus(took)

	if m.heartbeat != nil {
		m.heartbeat()
	}
}

// selectColorProfile picks the last non-transient profile whose triggers
// fire, holding the current one (or the first) when none fire.
func (m *Manager) selectColorProfile(env profile.Env) {
	if len(m.colorProfiles) == 0 {
		return
	}
	next := max(m.colorCurrent, 0)
	for i := range m.colorProfiles {
		p := &m.colorProfiles[i]
		if !p.Transient && profile.AnyFires(p.Triggers, env) {
			next = i
		}
	}

	changed := next != m.colorCurrent
	p := &m.colorProfiles[next]
	if !changed && !p.IsAnimated() {
		return
	}
	if changed {
		log.Info().Str("profile", p.Name).Uint64("frame", m.frame).Msg("Activating color profile")
		m.pub.Publish(eventbus.Event{
			Type: eventbus.EventTypeColorProfile,
			Data: map[string]any{"profile": p.Name, "index": next, "previous": m.profileName(m.colorCurrent), "frame": m.frame},
		})
	}
	m.colorCurrent = next
	m.applyColorProfile(p)
}

func (m *Manager) profileName(i int) string {
	if i < 0 || i >= len(m.colorProfiles) {
		return ""
	}
	return m.colorProfiles[i].Name
}

func (m *Manager) applyColorProfile(p *profile.ColorProfile) {
	for i := range p.Strips {
		b := &p.Strips[i]
		for _, d := range m.devices {
			if d.Name() != b.Device {
				continue
			}
			strips := d.Strips()
			if b.Channel < len(strips) {
				b.Apply(&strips[b.Channel], m.probes, m.frame)
			}
		}
	}
}

// applyTransients overlays every transient profile whose triggers fire.
// Overlays never become current.
func (m *Manager) applyTransients(env profile.Env) {
	for i := range m.colorProfiles {
		p := &m.colorProfiles[i]
		if p.Transient && profile.AnyFires(p.Triggers, env) {
			m.applyColorProfile(p)
		}
	}
}

func (m *Manager) selectFanProfile(env profile.Env) {
	if len(m.fanProfiles) == 0 {
		return
	}
	next := max(m.fanCurrent, 0)
	for i := range m.fanProfiles {
		if profile.AnyFires(m.fanProfiles[i].Triggers, env) {
			next = i
		}
	}
	if next == m.fanCurrent {
		return
	}

	p := &m.fanProfiles[next]
	log.Info().Str("profile", p.Name).Uint64("frame", m.frame).Msg("Activating fan profile")
	previous := ""
	if m.fanCurrent >= 0 {
		previous = m.fanProfiles[m.fanCurrent].Name
	}
	m.pub.Publish(eventbus.Event{
		Type: eventbus.EventTypeFanProfile,
		Data: map[string]any{"profile": p.Name, "index": next, "previous": previous, "frame": m.frame},
	})
	m.fanCurrent = next

	for _, b := range p.Fans {
		for _, d := range m.devices {
			if d.Name() != b.Device {
				continue
			}
			fans := d.Fans()
			if b.Channel < len(fans) {
				fans[b.Channel] = b.Fan
			}
		}
	}
}

// recoverFromStall re-initializes every device when the gap since the last
// tick shows the process or host was suspended.
func (m *Manager) recoverFromStall(ctx context.Context) {
	now := m.clock.Now()
	elapsed := now.Sub(m.lastUpdate)
	m.lastUpdate = now
	if elapsed <= m.timing.StallThreshold {
		return
	}

	log.Warn().Dur("gap", elapsed).Msg("Recovering from system sleep")
	if !sleep(ctx, m.clock, m.timing.StallPause) {
		return
	}
	failures := 0
	for _, d := range m.devices {
		if err := d.Initialize(); err != nil {
			failures++
			log.Error().Err(err).Str("device", d.Name()).Msg("Unable to re-initialize device")
		}
	}
	sleep(ctx, m.clock, m.timing.ResumePause)
	m.lastUpdate = m.clock.Now()
	m.recoveries++

	m.pub.Publish(eventbus.Event{
		Type: eventbus.EventTypeStallRecovered,
		Data: map[string]any{"gap_ms": elapsed.Milliseconds(), "failures": failures},
	})
}

// updateDevices ticks every device and rebuilds the probe snapshot. A
// failing device is logged and skipped; its last probes are kept.
func (m *Manager) updateDevices() {
	m.probes = m.probes[:0]
	for i, d := range m.devices {
		err := d.Update()
		switch {
		case err != nil:
			log.Error().Err(err).Str("device", d.Name()).Msg("Unable to update device")
			if !m.failed[i] {
				m.failed[i] = true
				m.pub.Publish(eventbus.Event{
					Type: eventbus.EventTypeDeviceFailed,
					Data: map[string]any{"device": d.Name(), "error": err.Error()},
				})
			}
		case m.failed[i]:
			m.failed[i] = false
			log.Info().Str("device", d.Name()).Msg("Device recovered")
			m.pub.Publish(eventbus.Event{
				Type: eventbus.EventTypeDeviceRecovered,
				Data: map[string]any{"device": d.Name()},
			})
		}
		m.probes = append(m.probes, d.Probes()...)
	}
}

func (m *Manager) reportStatus() {
	now := m.clock.Now()
	if now.Sub(m.lastLog) <= m.timing.StatusInterval {
		return
	}
	m.lastLog = now

	log.Info().
		Uint64("frame", m.frame).
		Str("color_profile", m.profileName(m.colorCurrent)).
		Dur("tick_avg", time.Duration(m.latency.Reduce(rolling.Avg))).
		Dur("tick_max", time.Duration(m.latency.Reduce(rolling.Max))).
		Msg("Control loop status")
	for _, d := range m.devices {
		if !d.LEDOnly() {
			d.ReportStatus()
		}
	}
}
