// Package api serves the read-only status API of the daemon.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hidlight/internal/ledger"
	"github.com/dokzlo13/hidlight/internal/manager"
)

// StatusSource provides the latest control-loop snapshot.
type StatusSource interface {
	Status() manager.Status
}

// EventSource queries the audit ledger.
type EventSource interface {
	GetByType(eventType ledger.EventType, limit int) ([]*ledger.Entry, error)
	GetByTimeRange(start, end time.Time, limit int) ([]*ledger.Entry, error)
}

// Options configures the server. Events and PrometheusHandler are optional.
type Options struct {
	Status            StatusSource
	Events            EventSource
	PrometheusHandler http.Handler

	// StaleAfter marks the loop unhealthy when no tick completed for this
	// long. Zero disables the check.
	StaleAfter time.Duration
}

// Server represents the HTTP status API
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    Options
	now        func() time.Time
}

// NewServer creates a new API server with Huma v2 on the standard mux.
func NewServer(opts Options) *Server {
	mux := http.NewServeMux()

	config := huma.DefaultConfig("hidlight API", "1.0.0")
	config.Info.Description = "Status of the lighting and fan control loop"
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)
	api.UseMiddleware(HTTPLoggingMiddleware)

	s := &Server{
		api:     api,
		mux:     mux,
		options: opts,
		now:     time.Now,
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on addr and serves until Stop is called.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("Status API listening")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Status API stopped")
		}
	}()
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health",
		Description: "Check that the control loop is ticking",
		Tags:        []string{"health"},
		Errors:      []int{503},
	}, func(ctx context.Context, input *struct{}) (*HealthResponse, error) {
		return s.health()
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Status",
		Description: "Active profiles, probe temperatures and fan speeds",
		Tags:        []string{"status"},
	}, func(ctx context.Context, input *struct{}) (*StatusResponse, error) {
		return &StatusResponse{Body: statusData(s.options.Status.Status())}, nil
	})

	if s.options.Events != nil {
		huma.Register(s.api, huma.Operation{
			OperationID: "list-events",
			Method:      http.MethodGet,
			Path:        "/events",
			Summary:     "Events",
			Description: "Recent profile switches, stall recoveries and device faults",
			Tags:        []string{"events"},
			Errors:      []int{400, 500},
		}, s.listEvents)
	}
}

func (s *Server) health() (*HealthResponse, error) {
	st := s.options.Status.Status()
	if s.options.StaleAfter > 0 {
		if st.LastTick.IsZero() || s.now().Sub(st.LastTick) > s.options.StaleAfter {
			return nil, huma.Error503ServiceUnavailable("control loop is not ticking")
		}
	}
	msg := "Control loop running"
	for _, d := range st.Devices {
		if d.Failed {
			msg = "Device " + d.Name + " is failing"
			break
		}
	}
	return &HealthResponse{Body: HealthData{Status: "ok", Message: msg}}, nil
}

func (s *Server) listEvents(ctx context.Context, input *EventsInput) (*EventsResponse, error) {
	var (
		entries []*ledger.Entry
		err     error
	)
	if input.Type != "" {
		entries, err = s.options.Events.GetByType(ledger.EventType(input.Type), input.Limit)
	} else {
		since := 24 * time.Hour
		if input.Since != "" {
			since, err = time.ParseDuration(input.Since)
			if err != nil {
				return nil, huma.Error400BadRequest("invalid since", err)
			}
		}
		now := s.now()
		entries, err = s.options.Events.GetByTimeRange(now.Add(-since), now, input.Limit)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to query events", err)
	}

	resp := &EventsResponse{}
	resp.Body.Events = make([]EventData, 0, len(entries))
	for _, e := range entries {
		resp.Body.Events = append(resp.Body.Events, EventData{
			ID:        e.ID,
			Type:      string(e.EventType),
			Timestamp: e.Timestamp,
			RunID:     e.RunID,
			Subject:   e.Subject,
			Payload:   e.Payload,
		})
	}
	return resp, nil
}

func statusData(st manager.Status) StatusData {
	out := StatusData{
		Frame:        st.Frame,
		ColorProfile: st.ColorProfile,
		FanProfile:   st.FanProfile,
		Recoveries:   st.Recoveries,
		LastTick:     st.LastTick,
		TickMillis:   millis(st.TickDuration),
		TickAvgMs:    millis(st.TickAvg),
		TickMaxMs:    millis(st.TickMax),
		Devices:      make([]DeviceData, 0, len(st.Devices)),
	}
	for _, d := range st.Devices {
		dd := DeviceData{
			Name:    d.Name,
			LEDOnly: d.LEDOnly,
			Failed:  d.Failed,
			Probes:  make([]ProbeData, 0, len(d.Probes)),
			Fans:    make([]FanData, 0, len(d.RPMs)),
		}
		for i, p := range d.Probes {
			pd := ProbeData{Index: i}
			if p.Valid {
				temp := p.Temp
				pd.Temperature = &temp
			}
			dd.Probes = append(dd.Probes, pd)
		}
		for i, rpm := range d.RPMs {
			dd.Fans = append(dd.Fans, FanData{Index: i, RPM: rpm})
		}
		out.Devices = append(out.Devices, dd)
	}
	return out
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
