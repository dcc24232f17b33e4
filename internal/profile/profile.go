// Package profile holds the declarative lighting and fan configuration:
// trigger-gated color and fan profiles, LED index selections and their
// YAML/TOML decoding.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/hidlight/internal/device"
	"github.com/dokzlo13/hidlight/internal/effect"
	"github.com/dokzlo13/hidlight/internal/tagged"
)

// Config is the profile document: color profiles and fan profiles, each in
// priority order (later entries win ties).
type Config struct {
	ColorProfiles []ColorProfile `yaml:"color_profiles"`
	FanProfiles   []FanProfile   `yaml:"fan_profiles"`
}

// ColorProfile is a named, trigger-gated set of effect bindings. A transient
// profile is overlaid while its triggers fire and never becomes current.
type ColorProfile struct {
	Name      string         `yaml:"name"`
	Triggers  Triggers       `yaml:"triggers"`
	Transient bool           `yaml:"transient"`
	Strips    []StripBinding `yaml:"strips"`
}

// StripBinding renders one effect onto the selected LEDs of a device
// channel. EffectPath is set while the effect still has to be loaded from a
// file.
type StripBinding struct {
	Device     string
	Channel    int
	Indices    Indices
	Effect     effect.Effect
	EffectPath string
}

// FanProfile is a named, trigger-gated set of fan settings.
type FanProfile struct {
	Name     string       `yaml:"name"`
	Triggers Triggers     `yaml:"triggers"`
	Fans     []FanBinding `yaml:"fans"`
}

// FanBinding sets one fan channel of a device.
type FanBinding struct {
	Device  string
	Channel int
	Fan     device.Fan
}

// Initialize normalizes the indices of every binding.
func (p *ColorProfile) Initialize() {
	for i := range p.Strips {
		p.Strips[i].Indices.Initialize()
	}
}

// IsAnimated reports whether any binding must be re-rendered every tick.
func (p *ColorProfile) IsAnimated() bool {
	for _, s := range p.Strips {
		if s.Effect != nil && s.Effect.Animated() {
			return true
		}
	}
	return false
}

// Apply renders the binding's effect onto strip.
func (b *StripBinding) Apply(strip *device.Strip, probes []device.Probe, frame uint64) {
	effect.Apply(b.Effect, strip, probes, b.Indices.List(), frame)
}

// Initialize normalizes every color profile.
func (c *Config) Initialize() {
	for i := range c.ColorProfiles {
		c.ColorProfiles[i].Initialize()
	}
}

// Validate checks the bindings for values the control loop cannot use.
func (c *Config) Validate() error {
	var errs []error
	for _, p := range c.ColorProfiles {
		for _, s := range p.Strips {
			if s.Device == "" {
				errs = append(errs, fmt.Errorf("color profile %q: binding without device", p.Name))
			}
			if s.Channel < 0 {
				errs = append(errs, fmt.Errorf("color profile %q: negative channel %d", p.Name, s.Channel))
			}
			if s.Effect == nil {
				errs = append(errs, fmt.Errorf("color profile %q: effect %q not loaded", p.Name, s.EffectPath))
			}
			if s.Indices.Kind() == KindSpecific {
				for _, i := range s.Indices.List() {
					if i < 0 || i >= device.MaxStripLEDs {
						errs = append(errs, fmt.Errorf("color profile %q: led index %d outside [0, %d)", p.Name, i, device.MaxStripLEDs))
						break
					}
				}
			}
		}
	}
	for _, p := range c.FanProfiles {
		for _, f := range p.Fans {
			if f.Device == "" {
				errs = append(errs, fmt.Errorf("fan profile %q: binding without device", p.Name))
			}
			if f.Channel < 0 {
				errs = append(errs, fmt.Errorf("fan profile %q: negative channel %d", p.Name, f.Channel))
			}
		}
	}
	return errors.Join(errs...)
}

func (b *StripBinding) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Device  string    `yaml:"device"`
		Channel int       `yaml:"channel"`
		Indices *Indices  `yaml:"indices"`
		Effect  yaml.Node `yaml:"effect"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Indices == nil {
		return fmt.Errorf("line %d: strip binding needs indices", node.Line)
	}
	if raw.Effect.Kind == 0 {
		return fmt.Errorf("line %d: strip binding needs an effect", node.Line)
	}

	*b = StripBinding{Device: raw.Device, Channel: raw.Channel, Indices: *raw.Indices}
	if path, ok := effectPath(&raw.Effect); ok {
		b.EffectPath = path
		return nil
	}
	e, err := effect.Decode(&raw.Effect)
	if err != nil {
		return err
	}
	b.Effect = e
	return nil
}

func (b *FanBinding) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Device  string    `yaml:"device"`
		Channel int       `yaml:"channel"`
		Fan     yaml.Node `yaml:"fan"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Fan.Kind == 0 {
		return fmt.Errorf("line %d: fan binding needs a fan setting", node.Line)
	}
	fan, err := device.DecodeFan(&raw.Fan)
	if err != nil {
		return err
	}
	*b = FanBinding{Device: raw.Device, Channel: raw.Channel, Fan: fan}
	return nil
}

// effectPath reports whether an effect node is a reference to an effect
// file rather than an inline effect.
func effectPath(node *yaml.Node) (string, bool) {
	node = tagged.Resolve(node)
	if node.Kind != yaml.ScalarNode {
		return "", false
	}
	switch strings.ToLower(filepath.Ext(node.Value)) {
	case ".yaml", ".yml", ".toml":
		return node.Value, true
	}
	return "", false
}

// ResolveEffects loads every effect referenced by path. Relative paths are
// resolved against baseDir.
func (c *Config) ResolveEffects(baseDir string) error {
	for pi := range c.ColorProfiles {
		p := &c.ColorProfiles[pi]
		for si := range p.Strips {
			s := &p.Strips[si]
			if s.EffectPath == "" {
				continue
			}
			path := s.EffectPath
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			e, err := LoadEffect(path)
			if err != nil {
				return fmt.Errorf("color profile %q: %w", p.Name, err)
			}
			s.Effect = e
		}
	}
	return nil
}

// EffectFiles returns the resolved paths of every effect file the profiles
// reference, without duplicates.
func (c *Config) EffectFiles(baseDir string) []string {
	seen := make(map[string]bool)
	var files []string
	for _, p := range c.ColorProfiles {
		for _, s := range p.Strips {
			if s.EffectPath == "" {
				continue
			}
			path := s.EffectPath
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
		}
	}
	return files
}

// LoadEffect reads an effect document. `.toml` files are TOML, anything
// else is YAML; both use the same tagged layout, e.g. a `[static]` table.
func LoadEffect(path string) (effect.Effect, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read effect file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return nil, fmt.Errorf("convert %s: %w", path, err)
		}
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	e, err := effect.Decode(&node)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return e, nil
}

// Parse decodes a profile document, loads referenced effect files relative
// to baseDir and normalizes all indices.
func Parse(data []byte, baseDir string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Prepare(baseDir); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Prepare resolves effect files, normalizes indices and validates.
func (c *Config) Prepare(baseDir string) error {
	if err := c.ResolveEffects(baseDir); err != nil {
		return err
	}
	c.Initialize()
	return c.Validate()
}
