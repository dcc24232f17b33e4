package device

import (
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/hidlight/internal/color"
)

func decode(t *testing.T, src string) (Fan, error) {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	return DecodeFan(&node)
}

func TestDecodeFan(t *testing.T) {
	curve := `curve:
  sensor: 1
  points:
    - {temp: 20, rpm: 600}
    - {temp: 30, rpm: 800}
    - {temp: 40, rpm: 1000}
    - {temp: 50, rpm: 1200}
    - {temp: 60, rpm: 1600}
    - {temp: 70, rpm: 2000}
`
	tests := []struct {
		name    string
		src     string
		want    Fan
		wantErr bool
	}{
		{"pwm", "pwm: 0.5", PWM{Duty: 0.5}, false},
		{"rpm", "rpm: 1400", RPM{Target: 1400}, false},
		{"bare tag", "pwm", nil, true},
		{"unknown", "turbo: 1", nil, true},
		{"rpm overflow", "rpm: 70000", nil, true},
		{"short curve", "curve: {sensor: 0, points: [{temp: 20, rpm: 600}]}", nil, true},
		{"two keys", "{pwm: 0.5, rpm: 100}", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decode(t, tt.src)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("curve", func(t *testing.T) {
		got, err := decode(t, curve)
		if err != nil {
			t.Fatal(err)
		}
		c, ok := got.(Curve)
		if !ok {
			t.Fatalf("got %T, want Curve", got)
		}
		if c.Sensor != 1 || c.Points[0] != (CurvePoint{Temp: 20, RPM: 600}) || c.Points[5].RPM != 2000 {
			t.Errorf("curve = %v", c)
		}
	})
}

func TestStripGrow(t *testing.T) {
	s := Strip{Colors: []color.Color{color.RGB(1, 0, 0)}}
	s.Grow(3)
	if len(s.Colors) != 3 || s.Colors[0] != color.RGB(1, 0, 0) || s.Colors[2] != color.Black {
		t.Errorf("grown strip = %v", s.Colors)
	}
	s.Grow(1)
	if len(s.Colors) != 3 {
		t.Errorf("strip shrank to %d", len(s.Colors))
	}
}

func TestProbeAt(t *testing.T) {
	probes := []Probe{Reading(35), {}}
	tests := []struct {
		i      int
		want   float64
		wantOK bool
	}{
		{0, 35, true},
		{1, 0, false},
		{2, 0, false},
		{-1, 0, false},
	}
	for _, tt := range tests {
		got, ok := ProbeAt(probes, tt.i)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ProbeAt(%d) = %v, %v; want %v, %v", tt.i, got, ok, tt.want, tt.wantOK)
		}
	}
}
