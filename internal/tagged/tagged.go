// Package tagged decodes the single-key YAML mappings used to encode tagged
// unions in profile documents: `{tag: body}` or a bare `tag` scalar.
package tagged

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Split returns the tag and body of a tagged-union node. For a bare scalar
// tag the body is nil.
func Split(node *yaml.Node) (string, *yaml.Node, error) {
	node = Resolve(node)
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Value, nil, nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return "", nil, fmt.Errorf("line %d: expected exactly one key, got %d", node.Line, len(node.Content)/2)
		}
		return node.Content[0].Value, node.Content[1], nil
	default:
		return "", nil, fmt.Errorf("line %d: expected a mapping or a scalar tag", node.Line)
	}
}

// Resolve unwraps document and alias nodes.
func Resolve(node *yaml.Node) *yaml.Node {
	for node != nil {
		switch node.Kind {
		case yaml.DocumentNode:
			if len(node.Content) == 0 {
				return node
			}
			node = node.Content[0]
		case yaml.AliasNode:
			node = node.Alias
		default:
			return node
		}
	}
	return node
}

// Decode decodes body into v, treating a nil body as empty.
func Decode(body *yaml.Node, v any) error {
	if body == nil {
		return nil
	}
	return body.Decode(v)
}
