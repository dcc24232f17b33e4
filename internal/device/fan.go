package device

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/hidlight/internal/tagged"
)

// CurvePoints is the number of breakpoints in a fan curve.
const CurvePoints = 6

// Fan is the configuration of one fan channel: PWM, RPM or Curve.
type Fan interface {
	isFan()
}

// PWM drives the fan at a fixed duty cycle in [0,1].
type PWM struct {
	Duty float64
}

// RPM targets a fixed speed.
type RPM struct {
	Target uint16
}

// CurvePoint maps a temperature to a fan speed.
type CurvePoint struct {
	Temp float64 `yaml:"temp"`
	RPM  uint16  `yaml:"rpm"`
}

// Curve follows a temperature probe through six ordered breakpoints.
type Curve struct {
	Sensor int
	Points [CurvePoints]CurvePoint
}

func (PWM) isFan()   {}
func (RPM) isFan()   {}
func (Curve) isFan() {}

func (f PWM) String() string { return fmt.Sprintf("pwm(%.2f)", f.Duty) }
func (f RPM) String() string { return fmt.Sprintf("rpm(%d)", f.Target) }
func (f Curve) String() string {
	return fmt.Sprintf("curve(sensor=%d, %v)", f.Sensor, f.Points)
}

// DefaultFan is the state of a fan channel before any profile applies.
var DefaultFan Fan = PWM{Duty: 0.25}

// DecodeFan decodes `{pwm: d}`, `{rpm: n}` or
// `{curve: {sensor: i, points: [...]}}`.
func DecodeFan(node *yaml.Node) (Fan, error) {
	tag, body, err := tagged.Split(node)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("line %d: fan %q needs a value", node.Line, tag)
	}

	switch tag {
	case "pwm":
		var duty float64
		if err := body.Decode(&duty); err != nil {
			return nil, fmt.Errorf("line %d: pwm: %w", body.Line, err)
		}
		return PWM{Duty: duty}, nil
	case "rpm":
		var target uint16
		if err := body.Decode(&target); err != nil {
			return nil, fmt.Errorf("line %d: rpm: %w", body.Line, err)
		}
		return RPM{Target: target}, nil
	case "curve":
		var raw struct {
			Sensor int          `yaml:"sensor"`
			Points []CurvePoint `yaml:"points"`
		}
		if err := body.Decode(&raw); err != nil {
			return nil, fmt.Errorf("line %d: curve: %w", body.Line, err)
		}
		if len(raw.Points) != CurvePoints {
			return nil, fmt.Errorf("line %d: curve needs exactly %d points, got %d", body.Line, CurvePoints, len(raw.Points))
		}
		c := Curve{Sensor: raw.Sensor}
		copy(c.Points[:], raw.Points)
		return c, nil
	default:
		return nil, fmt.Errorf("line %d: unknown fan mode %q", node.Line, tag)
	}
}
