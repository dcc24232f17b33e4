package color

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/hidlight/internal/tagged"
)

// UnmarshalYAML accepts `{rgb: [r,g,b]}`, `{hsv: [h,s,v]}` or a hex string.
func (c *Color) UnmarshalYAML(value *yaml.Node) error {
	value = tagged.Resolve(value)
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseHex(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*c = parsed
		return nil
	}

	tag, body, err := tagged.Split(value)
	if err != nil {
		return err
	}
	var comps [3]float64
	if body == nil {
		return fmt.Errorf("line %d: color %q needs three components", value.Line, tag)
	}
	if err := body.Decode(&comps); err != nil {
		return fmt.Errorf("line %d: color %q: %w", value.Line, tag, err)
	}

	switch tag {
	case "rgb":
		*c = RGB(comps[0], comps[1], comps[2])
	case "hsv":
		*c = HSV(comps[0], comps[1], comps[2])
	default:
		return fmt.Errorf("line %d: unknown color space %q", value.Line, tag)
	}
	return nil
}

// ParseHex parses "#rrggbb" (or "#rgb") into an RGB color in [0,1].
func ParseHex(s string) (Color, error) {
	if len(s) > 0 && s[0] != '#' {
		s = "#" + s
	}
	parsed, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return RGB(parsed.R, parsed.G, parsed.B), nil
}

// UnmarshalYAML accepts `{blend: f}`, `{add: f}`, `{sub: f}` or a bare mode
// name, which uses factor 1.
func (o *Op) UnmarshalYAML(value *yaml.Node) error {
	tag, body, err := tagged.Split(value)
	if err != nil {
		return err
	}

	factor := 1.0
	if err := tagged.Decode(body, &factor); err != nil {
		return fmt.Errorf("line %d: op %q: %w", value.Line, tag, err)
	}

	switch tag {
	case "blend":
		*o = Blend(factor)
	case "add":
		*o = Add(factor)
	case "sub":
		*o = Sub(factor)
	default:
		return fmt.Errorf("line %d: unknown color op %q", value.Line, tag)
	}
	return nil
}
