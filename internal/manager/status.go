package manager

import (
	"slices"
	"sync"
	"time"

	"github.com/asecurityteam/rolling"

	"github.com/dokzlo13/hidlight/internal/device"
	"github.com/dokzlo13/hidlight/internal/eventbus"
)

// DeviceStatus is a copy of one device's observable state.
type DeviceStatus struct {
	Name    string
	LEDOnly bool
	Failed  bool
	Probes  []device.Probe
	RPMs    []uint16
}

// Status is a point-in-time copy of the loop state, safe to read from other
// goroutines.
type Status struct {
	Frame        uint64
	ColorProfile string
	FanProfile   string
	Probes       []device.Probe
	Devices      []DeviceStatus
	Recoveries   uint64
	LastTick     time.Time
	TickDuration time.Duration
	TickAvg      time.Duration
	TickMax      time.Duration
}

type statusBox struct {
	mu sync.RWMutex
	s  Status
}

// Status returns the state captured at the end of the last tick.
func (m *Manager) Status() Status {
	m.status.mu.RLock()
	defer m.status.mu.RUnlock()
	return m.status.s
}

func (m *Manager) publishStatus(took time.Duration) {
	s := Status{
		Frame:        m.frame,
		ColorProfile: m.profileName(m.colorCurrent),
		Probes:       slices.Clone(m.probes),
		Recoveries:   m.recoveries,
		LastTick:     m.clock.Now(),
		TickDuration: took,
		TickAvg:      time.Duration(m.latency.Reduce(rolling.Avg)),
		TickMax:      time.Duration(m.latency.Reduce(rolling.Max)),
		Devices:      make([]DeviceStatus, len(m.devices)),
	}
	if m.fanCurrent >= 0 {
		s.FanProfile = m.fanProfiles[m.fanCurrent].Name
	}
	for i, d := range m.devices {
		ds := DeviceStatus{
			Name:    d.Name(),
			LEDOnly: d.LEDOnly(),
			Failed:  m.failed[i],
			Probes:  slices.Clone(d.Probes()),
		}
		if t, ok := d.(device.Tachometer); ok {
			ds.RPMs = slices.Clone(t.RPMs())
		}
		s.Devices[i] = ds
	}

	m.status.mu.Lock()
	m.status.s = s
	m.status.mu.Unlock()

	m.pub.Publish(eventbus.Event{
		Type: eventbus.EventTypeTick,
		Data: map[string]any{"frame": s.Frame, "duration": took, "status": s},
	})
}
