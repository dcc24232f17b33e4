package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hidlight/internal/api"
	"github.com/dokzlo13/hidlight/internal/config"
	"github.com/dokzlo13/hidlight/internal/corsair"
	"github.com/dokzlo13/hidlight/internal/db"
	"github.com/dokzlo13/hidlight/internal/eventbus"
	"github.com/dokzlo13/hidlight/internal/hid"
	"github.com/dokzlo13/hidlight/internal/ledger"
	"github.com/dokzlo13/hidlight/internal/manager"
	"github.com/dokzlo13/hidlight/internal/metrics"
	"github.com/dokzlo13/hidlight/internal/profile"
	"github.com/dokzlo13/hidlight/internal/script"
)

// ErrRestartRequired reports that a watched config file changed.
var ErrRestartRequired = errors.New("restart required")

// Discoverer opens the attached controllers.
type Discoverer func() ([]corsair.Attached, error)

// DiscoverHID enumerates hidraw nodes and opens every supported controller.
func DiscoverHID() ([]corsair.Attached, error) {
	infos, err := hid.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerate hid devices: %w", err)
	}
	return corsair.Discover(infos, hid.OpenTransport)
}

type options struct {
	discover  Discoverer
	processes profile.ProcessChecker
	clock     manager.Clock
}

// Option customizes service construction.
type Option func(*options)

// WithDiscoverer replaces hidraw discovery.
func WithDiscoverer(d Discoverer) Option { return func(o *options) { o.discover = d } }

// WithProcessChecker sets the collaborator behind process_running triggers.
func WithProcessChecker(p profile.ProcessChecker) Option {
	return func(o *options) { o.processes = p }
}

// WithClock sets the control-loop clock.
func WithClock(c manager.Clock) Option { return func(o *options) { o.clock = c } }

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Hardware
	Attached []corsair.Attached

	// Control loop
	Scripts *script.Engine
	Manager *manager.Manager

	// Outer surfaces
	API     *api.Server
	Systemd *SystemdService
	Watcher *WatchService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, opts ...Option) (*Services, error) {
	o := options{discover: DiscoverHID, processes: profile.NoProcesses{}}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Services{cfg: cfg}

	attached, err := o.discover()
	if err != nil {
		return nil, err
	}
	s.Attached = attached

	if cfg.Ledger.IsEnabled() {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
	}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.Workers, cfg.EventBus.QueueSize)
	s.Scripts = script.New(cfg.Loop.ScriptTimeout.Duration())
	s.Systemd = NewSystemdService(cfg.Systemd)

	mopts := []manager.Option{
		manager.WithTiming(cfg.Loop.Timing()),
		manager.WithPublisher(s.Bus),
		manager.WithScripts(s.Scripts),
		manager.WithProcesses(o.processes),
		manager.WithHeartbeat(s.Systemd.Heartbeat),
	}
	if o.clock != nil {
		mopts = append(mopts, manager.WithClock(o.clock))
	}
	s.Manager = manager.New(corsair.Devices(attached), &cfg.Profiles, mopts...)

	if cfg.HTTP.Enabled {
		apiOpts := api.Options{
			Status:            s.Manager,
			PrometheusHandler: metrics.Handler(),
			StaleAfter:        cfg.Loop.StallThreshold.Duration() + cfg.Loop.StallPause.Duration(),
		}
		if s.Ledger != nil {
			apiOpts.Events = s.Ledger
		}
		s.API = api.NewServer(apiOpts)
	}

	if cfg.RestartOnChange && cfg.Path != "" {
		s.Watcher = NewWatchService(cfg.Path, cfg.Profiles.EffectFiles(filepath.Dir(cfg.Path)))
	}

	return s, nil
}

// DeviceNames returns the names of the attached controllers.
func (s *Services) DeviceNames() []string {
	names := make([]string, len(s.Attached))
	for i, a := range s.Attached {
		names[i] = a.Device.Name()
	}
	return names
}

// Start initializes every device and starts the background services. Any
// device failing to initialize aborts startup.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	for _, a := range s.Attached {
		if err := a.Device.Initialize(); err != nil {
			return fmt.Errorf("initialize %s at %s: %w", a.Device.Name(), a.Info.Path, err)
		}
	}

	metrics.Subscribe(s.Bus)
	if s.Ledger != nil {
		if err := s.Ledger.StartRun(s.cfg.Path, s.DeviceNames()); err != nil {
			log.Warn().Err(err).Msg("Failed to record run start")
		}
		s.Ledger.Subscribe(s.Bus)
		retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
		go s.Ledger.RunCleanup(ctx, s.cfg.Ledger.CleanupInterval.Duration(), retention)
	}

	if s.API != nil {
		if err := s.API.Start(s.cfg.HTTP.Addr()); err != nil {
			return fmt.Errorf("start status api: %w", err)
		}
	}

	if s.Watcher != nil {
		if err := s.Watcher.Start(ctx, func(path string) {
			onFatalError(fmt.Errorf("%s changed: %w", path, ErrRestartRequired))
		}); err != nil {
			log.Warn().Err(err).Msg("Config watcher unavailable, restart_on_change disabled")
		}
	}

	s.Systemd.Ready()
	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Systemd.Stopping()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
	defer cancel()

	var errs []error
	if s.API != nil {
		if err := s.API.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop status api: %w", err))
		}
	}
	s.Bus.Close(ctx)
	if s.Ledger != nil {
		if err := s.Ledger.StopRun(); err != nil {
			errs = append(errs, fmt.Errorf("record run stop: %w", err))
		}
	}

	s.Close()
	return errors.Join(errs...)
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Watcher != nil {
		s.Watcher.Stop()
	}
	if s.Scripts != nil {
		s.Scripts.Close()
	}
	if err := corsair.Close(s.Attached); err != nil {
		log.Warn().Err(err).Msg("Failed to close device")
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
