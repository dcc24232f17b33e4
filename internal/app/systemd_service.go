package app

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hidlight/internal/config"
)

// SystemdService sends sd_notify state changes and watchdog keep-alives.
// Heartbeat is called from the control loop, so a wedged loop stops the
// keep-alives and lets systemd restart the service.
type SystemdService struct {
	cfg      config.SystemdConfig
	notify   func(state string) (bool, error)
	now      func() time.Time
	interval time.Duration
	last     time.Time
}

// NewSystemdService reads the watchdog interval from the environment set up
// by systemd. Keep-alives are sent at half that interval.
func NewSystemdService(cfg config.SystemdConfig) *SystemdService {
	s := &SystemdService{
		cfg: cfg,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		now: time.Now,
	}
	if cfg.Watchdog {
		wd, err := daemon.SdWatchdogEnabled(false)
		if err != nil {
			log.Warn().Err(err).Msg("Invalid systemd watchdog settings")
		}
		s.interval = wd / 2
	}
	return s
}

// Ready reports that startup finished.
func (s *SystemdService) Ready() {
	if s.cfg.Notify {
		s.send(daemon.SdNotifyReady)
	}
}

// Stopping reports that shutdown began.
func (s *SystemdService) Stopping() {
	if s.cfg.Notify {
		s.send(daemon.SdNotifyStopping)
	}
}

// Heartbeat sends WATCHDOG=1 at most once per interval.
func (s *SystemdService) Heartbeat() {
	if s.interval <= 0 {
		return
	}
	now := s.now()
	if now.Sub(s.last) < s.interval {
		return
	}
	s.last = now
	s.send(daemon.SdNotifyWatchdog)
}

func (s *SystemdService) send(state string) {
	sent, err := s.notify(state)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("state", state).Msg("systemd notify failed")
	case sent:
		log.Debug().Str("state", state).Msg("systemd notified")
	}
}
