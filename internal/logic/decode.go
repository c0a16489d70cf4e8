package logic

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeYAML decodes a condition tree. A mapping with a "conditions" key is
// a Group; any other mapping is a Condition. Unknown keys are rejected.
func DecodeYAML(value *yaml.Node) (Node, error) {
	if value.Kind == yaml.AliasNode && value.Alias != nil {
		value = value.Alias
	}
	if value.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: condition must be a mapping", value.Line)
	}

	if hasKey(value, "conditions") {
		var g Group
		if err := g.UnmarshalYAML(value); err != nil {
			return nil, err
		}
		return g, nil
	}

	if err := checkKeys(value, "field", "operator", "value"); err != nil {
		return nil, err
	}
	var c Condition
	if err := value.Decode(&c); err != nil {
		return nil, fmt.Errorf("line %d: decoding condition: %w", value.Line, err)
	}
	return c, nil
}

// UnmarshalYAML decodes a group and its children.
func (g *Group) UnmarshalYAML(value *yaml.Node) error {
	if err := checkKeys(value, "operator", "conditions"); err != nil {
		return err
	}

	var raw struct {
		Operator   GroupOperator `yaml:"operator"`
		Conditions []yaml.Node   `yaml:"conditions"`
	}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: decoding condition group: %w", value.Line, err)
	}

	g.Operator = raw.Operator
	g.Conditions = make([]Node, 0, len(raw.Conditions))
	for i := range raw.Conditions {
		child, err := DecodeYAML(&raw.Conditions[i])
		if err != nil {
			return err
		}
		g.Conditions = append(g.Conditions, child)
	}
	return nil
}

// hasKey reports whether mapping node m has the given key.
func hasKey(m *yaml.Node, key string) bool {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return true
		}
	}
	return false
}

// checkKeys rejects keys outside allowed. Custom unmarshalers do not inherit
// the decoder's KnownFields setting, so trees enforce it themselves.
func checkKeys(m *yaml.Node, allowed ...string) error {
	if m.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", m.Line)
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		key := m.Content[i]
		ok := false
		for _, a := range allowed {
			if key.Value == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("line %d: field %s not found in condition", key.Line, key.Value)
		}
	}
	return nil
}
