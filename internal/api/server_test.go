package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dokzlo13/hidlight/internal/device"
	"github.com/dokzlo13/hidlight/internal/ledger"
	"github.com/dokzlo13/hidlight/internal/manager"
)

type fixedStatus manager.Status

func (f fixedStatus) Status() manager.Status { return manager.Status(f) }

type fakeEvents struct {
	entries []*ledger.Entry
	err     error
	byType  ledger.EventType
	since   time.Time
}

func (f *fakeEvents) GetByType(t ledger.EventType, limit int) ([]*ledger.Entry, error) {
	f.byType = t
	return f.entries, f.err
}

func (f *fakeEvents) GetByTimeRange(start, end time.Time, limit int) ([]*ledger.Entry, error) {
	f.since = start
	return f.entries, f.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	st := fixedStatus{
		Frame:        7,
		ColorProfile: "idle",
		FanProfile:   "quiet",
		TickDuration: 2 * time.Millisecond,
		Devices: []manager.DeviceStatus{{
			Name:   "Commander PRO",
			Probes: []device.Probe{device.Reading(38.5), {}},
			RPMs:   []uint16{900},
		}},
	}
	s := NewServer(Options{Status: st})

	rec := get(t, s.Handler(), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d: %s", rec.Code, rec.Body)
	}
	var body StatusData
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Frame != 7 || body.ColorProfile != "idle" || body.FanProfile != "quiet" {
		t.Errorf("body = %+v", body)
	}
	if body.TickMillis != 2 {
		t.Errorf("tick_ms = %v, want 2", body.TickMillis)
	}
	d := body.Devices[0]
	if d.Probes[0].Temperature == nil || *d.Probes[0].Temperature != 38.5 {
		t.Errorf("probe 0 = %+v", d.Probes[0])
	}
	if d.Probes[1].Temperature != nil {
		t.Errorf("unconnected probe reported a temperature")
	}
	if len(d.Fans) != 1 || d.Fans[0].RPM != 900 {
		t.Errorf("fans = %+v", d.Fans)
	}
}

func TestHealth(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		lastTick time.Time
		failed   bool
		wantCode int
		wantMsg  string
	}{
		{"ticking", now.Add(-time.Second), false, http.StatusOK, "Control loop running"},
		{"device failing", now.Add(-time.Second), true, http.StatusOK, "Device hub is failing"},
		{"stale", now.Add(-time.Minute), false, http.StatusServiceUnavailable, ""},
		{"never ticked", time.Time{}, false, http.StatusServiceUnavailable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := fixedStatus{
				LastTick: tt.lastTick,
				Devices:  []manager.DeviceStatus{{Name: "hub", Failed: tt.failed}},
			}
			s := NewServer(Options{Status: st, StaleAfter: 10 * time.Second})
			s.now = func() time.Time { return now }

			rec := get(t, s.Handler(), "/health")
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantMsg == "" {
				return
			}
			var body HealthData
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", body.Message, tt.wantMsg)
			}
		})
	}
}

func TestEventsEndpoint(t *testing.T) {
	events := &fakeEvents{entries: []*ledger.Entry{{
		ID:        1,
		EventType: ledger.EventFanProfile,
		Timestamp: time.Unix(100, 0).UTC(),
		RunID:     "run",
		Subject:   "loud",
	}}}
	s := NewServer(Options{Status: fixedStatus{}, Events: events})

	rec := get(t, s.Handler(), "/events?type=fan_profile")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body)
	}
	if events.byType != ledger.EventFanProfile {
		t.Errorf("queried type %q", events.byType)
	}
	if !strings.Contains(rec.Body.String(), `"subject":"loud"`) {
		t.Errorf("body = %s", rec.Body)
	}

	if rec := get(t, s.Handler(), "/events?since=soon"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad since: code = %d", rec.Code)
	}

	events.err = errors.New("disk")
	if rec := get(t, s.Handler(), "/events?since=1h"); rec.Code != http.StatusInternalServerError {
		t.Errorf("query failure: code = %d", rec.Code)
	}
}

func TestMetricsHandlerMounted(t *testing.T) {
	called := false
	prom := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	s := NewServer(Options{Status: fixedStatus{}, PrometheusHandler: prom})

	get(t, s.Handler(), "/metrics")
	if !called {
		t.Error("metrics handler not mounted")
	}
	if rec := get(t, NewServer(Options{Status: fixedStatus{}}).Handler(), "/events"); rec.Code != http.StatusNotFound {
		t.Errorf("events without ledger: code = %d, want 404", rec.Code)
	}
}
