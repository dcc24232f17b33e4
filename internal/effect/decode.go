package effect

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/hidlight/internal/color"
	"github.com/dokzlo13/hidlight/internal/tagged"
)

func opOrDefault(op *color.Op) color.Op {
	if op == nil {
		return color.Replace
	}
	return *op
}

// Decode builds an Effect from its tagged YAML form, e.g.
// `{static: {color: "#ff0000"}}` or the bare scalar `noise`.
func Decode(node *yaml.Node) (Effect, error) {
	tag, body, err := tagged.Split(node)
	if err != nil {
		return nil, err
	}
	e, err := decodeVariant(tag, body)
	if err != nil {
		return nil, fmt.Errorf("line %d: effect %q: %w", node.Line, tag, err)
	}
	return e, nil
}

func decodeVariant(tag string, body *yaml.Node) (Effect, error) {
	switch tag {
	case "static":
		var raw struct {
			Color *color.Color `yaml:"color"`
			Op    *color.Op    `yaml:"op"`
		}
		if err := tagged.Decode(body, &raw); err != nil {
			return nil, err
		}
		if raw.Color == nil {
			return nil, fmt.Errorf("missing color")
		}
		return Static{Color: *raw.Color, Op: opOrDefault(raw.Op)}, nil

	case "gradient":
		var raw struct {
			From *color.Color `yaml:"from"`
			To   *color.Color `yaml:"to"`
			Op   *color.Op    `yaml:"op"`
		}
		if err := tagged.Decode(body, &raw); err != nil {
			return nil, err
		}
		if raw.From == nil || raw.To == nil {
			return nil, fmt.Errorf("missing from/to")
		}
		return Gradient{From: *raw.From, To: *raw.To, Op: opOrDefault(raw.Op)}, nil

	case "noise":
		var raw struct {
			Op *color.Op `yaml:"op"`
		}
		if err := tagged.Decode(body, &raw); err != nil {
			return nil, err
		}
		return Noise{Op: opOrDefault(raw.Op)}, nil

	case "temperature":
		var raw struct {
			Sensor         int          `yaml:"sensor"`
			MinTemperature float64      `yaml:"min_temperature"`
			MaxTemperature float64      `yaml:"max_temperature"`
			MinColor       *color.Color `yaml:"min_color"`
			MaxColor       *color.Color `yaml:"max_color"`
			Op             *color.Op    `yaml:"op"`
		}
		if err := tagged.Decode(body, &raw); err != nil {
			return nil, err
		}
		if raw.MinColor == nil || raw.MaxColor == nil {
			return nil, fmt.Errorf("missing min_color/max_color")
		}
		return Temperature{
			Sensor:         raw.Sensor,
			MinTemperature: raw.MinTemperature,
			MaxTemperature: raw.MaxTemperature,
			MinColor:       *raw.MinColor,
			MaxColor:       *raw.MaxColor,
			Op:             opOrDefault(raw.Op),
		}, nil

	case "wave":
		var raw struct {
			FramesPerLED int           `yaml:"frames_per_led"`
			Length       int           `yaml:"length"`
			Colors       []color.Color `yaml:"colors"`
			Op           *color.Op     `yaml:"op"`
		}
		if err := tagged.Decode(body, &raw); err != nil {
			return nil, err
		}
		if raw.Length <= 0 {
			return nil, fmt.Errorf("length must be positive")
		}
		return Wave{FramesPerLED: raw.FramesPerLED, Length: raw.Length, Colors: raw.Colors, Op: opOrDefault(raw.Op)}, nil

	case "rotation":
		var raw struct {
			Duration int           `yaml:"duration"`
			Colors   []color.Color `yaml:"colors"`
			Reverse  bool          `yaml:"reverse"`
			Op       *color.Op     `yaml:"op"`
		}
		if err := tagged.Decode(body, &raw); err != nil {
			return nil, err
		}
		return Rotation{Duration: raw.Duration, Colors: raw.Colors, Reverse: raw.Reverse, Op: opOrDefault(raw.Op)}, nil

	case "pattern":
		var raw struct {
			FramesPerLED int           `yaml:"frames_per_led"`
			Colors       []color.Color `yaml:"colors"`
			Reverse      bool          `yaml:"reverse"`
			Op           *color.Op     `yaml:"op"`
		}
		if err := tagged.Decode(body, &raw); err != nil {
			return nil, err
		}
		return Pattern{FramesPerLED: raw.FramesPerLED, Colors: raw.Colors, Reverse: raw.Reverse, Op: opOrDefault(raw.Op)}, nil

	default:
		return nil, fmt.Errorf("unknown effect")
	}
}
