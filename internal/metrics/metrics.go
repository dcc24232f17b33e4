// Package metrics exports control-loop telemetry as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dokzlo13/hidlight/internal/eventbus"
	"github.com/dokzlo13/hidlight/internal/manager"
)

var (
	probeTemperature = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hidlight",
		Subsystem: "device",
		Name:      "probe_temperature_celsius",
		Help:      "Latest temperature reading of a connected probe",
	}, []string{"device", "probe"})

	fanRPM = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hidlight",
		Subsystem: "device",
		Name:      "fan_rpm",
		Help:      "Latest fan speed reading",
	}, []string{"device", "fan"})

	deviceFailed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hidlight",
		Subsystem: "device",
		Name:      "failed",
		Help:      "1 while the last update of the device failed",
	}, []string{"device"})

	deviceFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hidlight",
		Subsystem: "device",
		Name:      "faults_total",
		Help:      "Transitions of a device into the failed state",
	}, []string{"device"})

	loopFrame = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hidlight",
		Subsystem: "loop",
		Name:      "frame",
		Help:      "Current animation frame",
	})

	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hidlight",
		Subsystem: "loop",
		Name:      "tick_duration_seconds",
		Help:      "Time spent in one control-loop tick",
		Buckets:   []float64{.001, .0025, .005, .01, .02, .03, .05, .1, .25, 1},
	})

	stallRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hidlight",
		Subsystem: "loop",
		Name:      "stall_recoveries_total",
		Help:      "Re-initializations after a suspended loop",
	})

	activeProfile = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hidlight",
		Subsystem: "profile",
		Name:      "active",
		Help:      "1 for the currently active profile of each kind",
	}, []string{"kind", "profile"})

	profileActivations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hidlight",
		Subsystem: "profile",
		Name:      "activations_total",
		Help:      "Profile switches",
	}, []string{"kind", "profile"})

	// Tick events are handled by several bus workers.
	observeMu    sync.Mutex
	observedFrame uint64
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStatus copies a loop snapshot into the gauges. A snapshot older
// than the last observed frame is ignored.
func ObserveStatus(s manager.Status) {
	tickDuration.Observe(s.TickDuration.Seconds())

	observeMu.Lock()
	defer observeMu.Unlock()
	if s.Frame < observedFrame {
		return
	}
	observedFrame = s.Frame
	loopFrame.Set(float64(s.Frame))

	activeProfile.Reset()
	if s.ColorProfile != "" {
		activeProfile.WithLabelValues("color", s.ColorProfile).Set(1)
	}
	if s.FanProfile != "" {
		activeProfile.WithLabelValues("fan", s.FanProfile).Set(1)
	}

	for _, d := range s.Devices {
		deviceFailed.WithLabelValues(d.Name).Set(boolValue(d.Failed))
		for i, p := range d.Probes {
			if p.Valid {
				probeTemperature.WithLabelValues(d.Name, strconv.Itoa(i)).Set(p.Temp)
			}
		}
		for i, rpm := range d.RPMs {
			fanRPM.WithLabelValues(d.Name, strconv.Itoa(i)).Set(float64(rpm))
		}
	}
}

// RecordActivation counts a profile switch.
func RecordActivation(kind, profile string) {
	profileActivations.WithLabelValues(kind, profile).Inc()
}

// Subscribe feeds the metrics from control-loop events.
func Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeTick, func(e eventbus.Event) {
		if s, ok := e.Data["status"].(manager.Status); ok {
			ObserveStatus(s)
		}
	})
	bus.Subscribe(eventbus.EventTypeColorProfile, activation("color"))
	bus.Subscribe(eventbus.EventTypeFanProfile, activation("fan"))
	bus.Subscribe(eventbus.EventTypeStallRecovered, func(eventbus.Event) {
		stallRecoveries.Inc()
	})
	bus.Subscribe(eventbus.EventTypeDeviceFailed, func(e eventbus.Event) {
		if name, ok := e.Data["device"].(string); ok {
			deviceFaults.WithLabelValues(name).Inc()
			deviceFailed.WithLabelValues(name).Set(1)
		}
	})
	bus.Subscribe(eventbus.EventTypeDeviceRecovered, func(e eventbus.Event) {
		if name, ok := e.Data["device"].(string); ok {
			deviceFailed.WithLabelValues(name).Set(0)
		}
	})
}

func activation(kind string) eventbus.Handler {
	return func(e eventbus.Event) {
		name, _ := e.Data["profile"].(string)
		RecordActivation(kind, name)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
