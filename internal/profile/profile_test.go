package profile

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/hidlight/internal/color"
	"github.com/dokzlo13/hidlight/internal/device"
	"github.com/dokzlo13/hidlight/internal/effect"
)

func TestIndicesInitialize(t *testing.T) {
	tests := []struct {
		name string
		in   Indices
		want []int
	}{
		{"range", Range(2, 5), []int{2, 3, 4}},
		{"ranges", Ranges(Span{0, 2}, Span{5, 7}), []int{0, 1, 5, 6}},
		{"specific", Specific(7, 1, 3), []int{7, 1, 3}},
		{"empty_range", Range(4, 4), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix := tt.in
			ix.Initialize()
			if ix.Kind() != KindSpecific {
				t.Fatalf("kind = %v, want specific", ix.Kind())
			}
			if !slices.Equal(ix.List(), tt.want) {
				t.Errorf("list = %v, want %v", ix.List(), tt.want)
			}
		})
	}
}

func TestIndicesListBeforeInitializePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Range(0, 3).List()
}

func TestIndicesYAML(t *testing.T) {
	tests := []struct {
		src  string
		want []int
	}{
		{"range: [2, 5]", []int{2, 3, 4}},
		{"ranges: [[0, 2], [5, 7]]", []int{0, 1, 5, 6}},
		{"specific: [3, 9]", []int{3, 9}},
		{"range: [200, 204]", []int{200, 201, 202, 203}},
	}
	for _, tt := range tests {
		var ix Indices
		if err := yaml.Unmarshal([]byte(tt.src), &ix); err != nil {
			t.Fatalf("%q: %v", tt.src, err)
		}
		ix.Initialize()
		if !slices.Equal(ix.List(), tt.want) {
			t.Errorf("%q: list = %v, want %v", tt.src, ix.List(), tt.want)
		}
	}

	for _, src := range []string{
		"range: [5, 2]",
		"range: [0, 320]",
		"ranges: [[0, 10], [200, 205]]",
		"specific: [-1]",
		"specific: [204]",
		"specific: [100000000]",
		"between: [1, 2]",
		"range",
	} {
		var ix Indices
		if err := yaml.Unmarshal([]byte(src), &ix); err == nil {
			t.Errorf("%q: expected error", src)
		}
	}
}

type fakeProcesses map[string]bool

func (f fakeProcesses) Running(name string) bool { return f[name] }

type fakeScripts struct{ result bool }

func (f fakeScripts) Eval(string, []device.Probe) bool { return f.result }

func TestTriggers(t *testing.T) {
	probes := []device.Probe{device.Reading(40), {}, device.Reading(70)}
	tests := []struct {
		name    string
		trigger Trigger
		env     Env
		want    bool
	}{
		{"above/true", SensorAbove{Sensor: 2, Temperature: 60}, Env{Probes: probes}, true},
		{"above/equal", SensorAbove{Sensor: 2, Temperature: 70}, Env{Probes: probes}, false},
		{"above/absent_probe", SensorAbove{Sensor: 1, Temperature: -100}, Env{Probes: probes}, false},
		{"above/out_of_range", SensorAbove{Sensor: 5, Temperature: 0}, Env{Probes: probes}, false},
		{"below/true", SensorBelow{Sensor: 0, Temperature: 50}, Env{Probes: probes}, true},
		{"below/false", SensorBelow{Sensor: 2, Temperature: 50}, Env{Probes: probes}, false},
		{"below/absent_probe", SensorBelow{Sensor: 1, Temperature: 1000}, Env{Probes: probes}, false},
		{"process/stub", ProcessRunning{Name: "game"}, Env{Processes: NoProcesses{}}, false},
		{"process/no_checker", ProcessRunning{Name: "game"}, Env{}, false},
		{"process/running", ProcessRunning{Name: "game"}, Env{Processes: fakeProcesses{"game": true}}, true},
		{"script/true", Script{Source: "return true"}, Env{Scripts: fakeScripts{true}}, true},
		{"script/no_engine", Script{Source: "return true"}, Env{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.trigger.Fires(tt.env); got != tt.want {
				t.Errorf("Fires = %v, want %v", got, tt.want)
			}
		})
	}
}

const document = `
color_profiles:
  - name: idle
    triggers: []
    strips:
      - device: Commander PRO
        channel: 0
        indices: {range: [0, 10]}
        effect:
          static:
            color: "#0000ff"
  - name: hot
    triggers:
      - sensor_above: {sensor: 0, temperature: 60}
      - script: "return probe(1) ~= nil"
    strips:
      - device: Commander PRO
        channel: 1
        indices: {specific: [0, 2, 4]}
        effect: wave.toml
  - name: alert
    transient: true
    triggers:
      - process_running: {name: renderer}
    strips:
      - device: Commander PRO
        channel: 0
        indices: {ranges: [[0, 2], [8, 10]]}
        effect: noise
fan_profiles:
  - name: quiet
    triggers: []
    fans:
      - device: Commander PRO
        channel: 0
        fan: {pwm: 0.3}
  - name: loud
    triggers:
      - sensor_above: {sensor: 0, temperature: 60}
    fans:
      - device: Commander PRO
        channel: 0
        fan: {rpm: 1800}
`

const waveTOML = `
[wave]
frames_per_led = 2
length = 4
colors = ["#ff0000", { hsv = [120.0, 1.0, 1.0] }]

[wave.op]
add = 0.5
`

func TestParseDocument(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "wave.toml"), []byte(waveTOML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Parse([]byte(document), dir)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.ColorProfiles) != 3 || len(cfg.FanProfiles) != 2 {
		t.Fatalf("profiles = %d color, %d fan", len(cfg.ColorProfiles), len(cfg.FanProfiles))
	}

	idle := cfg.ColorProfiles[0]
	if idle.IsAnimated() {
		t.Error("static profile reported animated")
	}
	if got := idle.Strips[0].Indices.List(); len(got) != 10 {
		t.Errorf("idle indices = %v", got)
	}
	if e, ok := idle.Strips[0].Effect.(effect.Static); !ok || e.Color.RGB() != [3]float64{0, 0, 1} {
		t.Errorf("idle effect = %#v", idle.Strips[0].Effect)
	}

	hot := cfg.ColorProfiles[1]
	if len(hot.Triggers) != 2 {
		t.Fatalf("hot triggers = %d", len(hot.Triggers))
	}
	if _, ok := hot.Triggers[1].(Script); !ok {
		t.Errorf("second trigger = %T, want Script", hot.Triggers[1])
	}
	wave, ok := hot.Strips[0].Effect.(effect.Wave)
	if !ok {
		t.Fatalf("hot effect = %T, want Wave", hot.Strips[0].Effect)
	}
	if wave.FramesPerLED != 2 || wave.Length != 4 || len(wave.Colors) != 2 {
		t.Errorf("wave = %+v", wave)
	}
	if wave.Colors[1].Space != color.SpaceHSV {
		t.Errorf("second wave color space = %v", wave.Colors[1].Space)
	}
	if wave.Op != color.Add(0.5) {
		t.Errorf("wave op = %v", wave.Op)
	}
	if !hot.IsAnimated() {
		t.Error("wave profile not animated")
	}

	alert := cfg.ColorProfiles[2]
	if !alert.Transient {
		t.Error("alert not transient")
	}
	if got := alert.Strips[0].Indices.List(); !slices.Equal(got, []int{0, 1, 8, 9}) {
		t.Errorf("alert indices = %v", got)
	}

	if fan := cfg.FanProfiles[1].Fans[0].Fan; fan != (device.RPM{Target: 1800}) {
		t.Errorf("loud fan = %v", fan)
	}

	if files := cfg.EffectFiles(dir); !slices.Equal(files, []string{filepath.Join(dir, "wave.toml")}) {
		t.Errorf("effect files = %v", files)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing_effect_file", `
color_profiles:
  - name: a
    strips:
      - {device: d, channel: 0, indices: {range: [0, 1]}, effect: missing.yaml}
`},
		{"unknown_trigger", `
color_profiles:
  - name: a
    triggers: [{moon_phase: full}]
`},
		{"bad_fan", `
fan_profiles:
  - name: a
    fans:
      - {device: d, channel: 0, fan: {curve: {sensor: 0, points: [{temp: 1, rpm: 1}]}}}
`},
		{"negative_channel", `
fan_profiles:
  - name: a
    fans:
      - {device: d, channel: -1, fan: {pwm: 1}}
`},
		{"led_index_past_channel", `
color_profiles:
  - name: a
    strips:
      - {device: d, channel: 0, indices: {range: [0, 320]}, effect: noise}
`},
		{"missing_indices", `
color_profiles:
  - name: a
    strips:
      - {device: d, channel: 0, effect: noise}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.src), t.TempDir()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidateRejectsLEDIndexPastChannel(t *testing.T) {
	cfg := Config{ColorProfiles: []ColorProfile{{
		Name: "wide",
		Strips: []StripBinding{{
			Device:  "d",
			Indices: Specific(3, device.MaxStripLEDs),
			Effect:  effect.Noise{},
		}},
	}}}
	cfg.Initialize()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for index past the channel limit")
	}
}

func TestLoadEffectYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pattern.yml")
	src := "pattern:\n  frames_per_led: 3\n  colors: [\"#ffffff\", \"#000000\"]\n  reverse: true\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := LoadEffect(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p, ok := e.(effect.Pattern)
	if !ok || p.FramesPerLED != 3 || !p.Reverse || len(p.Colors) != 2 {
		t.Errorf("effect = %#v", e)
	}
}
