package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/hidlight/internal/manager"
	"github.com/dokzlo13/hidlight/internal/profile"
)

// EnvConfigPath names the environment variable consulted for the config path.
const EnvConfigPath = "HIDLIGHT_CONFIG"

// Config represents the application configuration
type Config struct {
	Log             LogConfig      `yaml:"log"`
	Database        DatabaseConfig `yaml:"database"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	Loop            LoopConfig     `yaml:"loop"`
	HTTP            HTTPConfig     `yaml:"http"`
	Systemd         SystemdConfig  `yaml:"systemd"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	RestartOnChange bool           `yaml:"restart_on_change"` // Exit when the config file changes so the service manager restarts us
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"`

	// Profiles holds color_profiles and fan_profiles.
	Profiles profile.Config `yaml:",inline"`

	// Path is the file the configuration was loaded from.
	Path string `yaml:"-"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains audit ledger settings
type LedgerConfig struct {
	Enabled         *bool    `yaml:"enabled"` // default: true
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// IsEnabled returns whether the ledger is enabled (default: true)
func (c LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// LoopConfig contains control loop timing
type LoopConfig struct {
	Period         Duration `yaml:"period"`
	OverrunBackoff Duration `yaml:"overrun_backoff"`
	StallThreshold Duration `yaml:"stall_threshold"`
	StallPause     Duration `yaml:"stall_pause"`
	ResumePause    Duration `yaml:"resume_pause"`
	StatusInterval Duration `yaml:"status_interval"`
	ScriptTimeout  Duration `yaml:"script_timeout"`
}

// Timing converts the loop settings for the control loop.
func (c LoopConfig) Timing() manager.Timing {
	return manager.Timing{
		Period:         c.Period.Duration(),
		OverrunBackoff: c.OverrunBackoff.Duration(),
		StallThreshold: c.StallThreshold.Duration(),
		StallPause:     c.StallPause.Duration(),
		ResumePause:    c.ResumePause.Duration(),
		StatusInterval: c.StatusInterval.Duration(),
	}
}

// HTTPConfig contains status API settings
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SystemdConfig contains service manager integration settings
type SystemdConfig struct {
	Notify   bool `yaml:"notify"`
	Watchdog bool `yaml:"watchdog"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 256)
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ErrNotFound is returned by Find when no configuration file exists.
var ErrNotFound = errors.New("no configuration file found")

// SearchPaths returns the candidate config locations in lookup order.
func SearchPaths() []string {
	var paths []string
	if p := os.Getenv(EnvConfigPath); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, "config.yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "hidlight", "config.yaml"))
	}
	return append(paths, "/etc/hidlight/config.yaml")
}

// Find returns explicit when set, otherwise the first existing search path.
func Find(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrNotFound
}

// Load reads and parses the configuration file, loads effect files it
// references and normalizes the profiles.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes a configuration document. Effect files are resolved
// relative to baseDir.
func Parse(data []byte, baseDir string) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Profiles.Prepare(baseDir); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./hidlight.sqlite"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Loop defaults
	def := manager.DefaultTiming()
	setDuration(&cfg.Loop.Period, def.Period)
	setDuration(&cfg.Loop.OverrunBackoff, def.OverrunBackoff)
	setDuration(&cfg.Loop.StallThreshold, def.StallThreshold)
	setDuration(&cfg.Loop.StallPause, def.StallPause)
	setDuration(&cfg.Loop.ResumePause, def.ResumePause)
	setDuration(&cfg.Loop.StatusInterval, def.StatusInterval)
	setDuration(&cfg.Loop.ScriptTimeout, 5*time.Millisecond)

	// HTTP defaults
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 9180
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "127.0.0.1"
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func setDuration(d *Duration, def time.Duration) {
	if *d == 0 {
		*d = Duration(def)
	}
}

// GetShutdownTimeout returns the shutdown timeout as a time.Duration
func (cfg *Config) GetShutdownTimeout() time.Duration {
	return cfg.ShutdownTimeout.Duration()
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
