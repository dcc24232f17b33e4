package profile

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/hidlight/internal/device"
	"github.com/dokzlo13/hidlight/internal/tagged"
)

// IndicesKind tells which form an Indices value was declared in.
type IndicesKind int

const (
	KindRange IndicesKind = iota
	KindRanges
	KindSpecific
)

func (k IndicesKind) String() string {
	switch k {
	case KindRange:
		return "range"
	case KindRanges:
		return "ranges"
	default:
		return "specific"
	}
}

// Span is a half-open LED range [Lo, Hi).
type Span struct {
	Lo, Hi int
}

// Indices selects LEDs of a strip. Range and Ranges forms must be flattened
// with Initialize before List is called.
type Indices struct {
	kind     IndicesKind
	spans    []Span
	specific []int
}

// Range selects [lo, hi).
func Range(lo, hi int) Indices {
	return Indices{kind: KindRange, spans: []Span{{lo, hi}}}
}

// Ranges selects the concatenation of several half-open ranges.
func Ranges(spans ...Span) Indices {
	return Indices{kind: KindRanges, spans: spans}
}

// Specific selects an explicit list of LEDs.
func Specific(list ...int) Indices {
	return Indices{kind: KindSpecific, specific: list}
}

func (ix Indices) Kind() IndicesKind { return ix.kind }

// Initialize flattens Range and Ranges into Specific. Calling it on a
// Specific value is a no-op.
func (ix *Indices) Initialize() {
	if ix.kind == KindSpecific {
		return
	}
	var list []int
	for _, s := range ix.spans {
		for i := s.Lo; i < s.Hi; i++ {
			list = append(list, i)
		}
	}
	*ix = Indices{kind: KindSpecific, specific: list}
}

// List returns the flattened LED indices. It panics if Initialize has not
// been called on a Range or Ranges value.
func (ix Indices) List() []int {
	if ix.kind != KindSpecific {
		panic(fmt.Sprintf("profile: indices used before Initialize (%s)", ix.kind))
	}
	return ix.specific
}

func (ix Indices) String() string {
	if ix.kind == KindSpecific {
		return fmt.Sprintf("specific%v", ix.specific)
	}
	return fmt.Sprintf("%s%v", ix.kind, ix.spans)
}

// UnmarshalYAML decodes `{range: [lo, hi]}`, `{ranges: [[lo, hi], ...]}`
// or `{specific: [...]}`.
func (ix *Indices) UnmarshalYAML(node *yaml.Node) error {
	tag, body, err := tagged.Split(node)
	if err != nil {
		return err
	}
	if body == nil {
		return fmt.Errorf("line %d: indices %q need a value", node.Line, tag)
	}

	switch tag {
	case "range":
		var r [2]int
		if err := body.Decode(&r); err != nil {
			return fmt.Errorf("line %d: range: %w", body.Line, err)
		}
		span, err := checkSpan(r, body.Line)
		if err != nil {
			return err
		}
		*ix = Range(span.Lo, span.Hi)
	case "ranges":
		var rs [][2]int
		if err := body.Decode(&rs); err != nil {
			return fmt.Errorf("line %d: ranges: %w", body.Line, err)
		}
		spans := make([]Span, 0, len(rs))
		for _, r := range rs {
			span, err := checkSpan(r, body.Line)
			if err != nil {
				return err
			}
			spans = append(spans, span)
		}
		*ix = Ranges(spans...)
	case "specific":
		var list []int
		if err := body.Decode(&list); err != nil {
			return fmt.Errorf("line %d: specific: %w", body.Line, err)
		}
		for _, i := range list {
			if i < 0 || i >= device.MaxStripLEDs {
				return fmt.Errorf("line %d: led index %d outside [0, %d)", body.Line, i, device.MaxStripLEDs)
			}
		}
		*ix = Specific(list...)
	default:
		return fmt.Errorf("line %d: unknown indices form %q", node.Line, tag)
	}
	return nil
}

func checkSpan(r [2]int, line int) (Span, error) {
	if r[0] < 0 || r[1] < r[0] {
		return Span{}, fmt.Errorf("line %d: invalid range [%d, %d)", line, r[0], r[1])
	}
	if r[1] > device.MaxStripLEDs {
		return Span{}, fmt.Errorf("line %d: range [%d, %d) exceeds %d leds", line, r[0], r[1], device.MaxStripLEDs)
	}
	return Span{Lo: r[0], Hi: r[1]}, nil
}
