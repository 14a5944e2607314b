package value

import (
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// FromYAML converts a YAML node into a Value, preserving mapping key order
// and the literal spelling of numbers. Null scalars become empty strings.
func FromYAML(node *yaml.Node) (Value, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return String(""), nil
		}
		return FromYAML(node.Content[0])
	case yaml.AliasNode:
		return FromYAML(node.Alias)
	case yaml.ScalarNode:
		return scalarFromYAML(node)
	case yaml.SequenceNode:
		out := make(List, 0, len(node.Content))
		for _, item := range node.Content {
			v, err := FromYAML(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		m := NewMap()
		if err := m.UnmarshalYAML(node); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", node.Line, node.Kind)
	}
}

func scalarFromYAML(node *yaml.Node) (Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return String(""), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return Bool(b), nil
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return Number{Float: f, Text: node.Value}, nil
	default:
		return String(node.Value), nil
	}
}

// UnmarshalYAML decodes a YAML mapping into the map, keeping document order.
// Merge keys (<<) are expanded in place.
func (m *Map) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping, got %s", node.Line, node.ShortTag())
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		if keyNode.ShortTag() == "!!merge" {
			merged := NewMap()
			if err := merged.UnmarshalYAML(valNode); err != nil {
				return err
			}
			for _, k := range merged.Keys() {
				v, _ := merged.Get(k)
				m.Set(k, v)
			}
			continue
		}
		v, err := FromYAML(valNode)
		if err != nil {
			return err
		}
		m.Set(keyNode.Value, v)
	}
	return nil
}

// FromAny converts decoded Go data (as produced by TOML or JSON decoders)
// into a Value. Map keys are sorted because the source order is lost.
func FromAny(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return String(""), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(t), nil
	case int64:
		return Float(float64(t)), nil
	case uint64:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case time.Time:
		return String(t.Format(time.RFC3339)), nil
	case fmt.Stringer:
		return String(t.String()), nil
	case []any:
		out := make(List, 0, len(t))
		for _, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case []string:
		return Strings(t), nil
	case map[string]any:
		return MapFromAny(t)
	default:
		return nil, fmt.Errorf("unsupported value type %T", in)
	}
}

// MapFromAny converts a decoded Go map into a *Map with sorted keys.
func MapFromAny(in map[string]any) (*Map, error) {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := NewMap()
	for _, k := range keys {
		v, err := FromAny(in[k])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		m.Set(k, v)
	}
	return m, nil
}
