package validation

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeYAML decodes a validation tree. A mapping with a "rules" key is a
// Group; any other mapping is a Rule. Unknown keys are rejected.
func DecodeYAML(value *yaml.Node) (Node, error) {
	if value.Kind == yaml.AliasNode && value.Alias != nil {
		value = value.Alias
	}
	if value.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: validation must be a mapping", value.Line)
	}

	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "rules" {
			var g Group
			if err := g.UnmarshalYAML(value); err != nil {
				return nil, err
			}
			return g, nil
		}
	}

	if err := onlyKeys(value, "type", "value", "errorMessage"); err != nil {
		return nil, err
	}
	var r Rule
	if err := value.Decode(&r); err != nil {
		return nil, fmt.Errorf("line %d: decoding validation rule: %w", value.Line, err)
	}
	return r, nil
}

// UnmarshalYAML decodes a group and its children.
func (g *Group) UnmarshalYAML(value *yaml.Node) error {
	if err := onlyKeys(value, "operator", "rules"); err != nil {
		return err
	}

	var raw struct {
		Operator GroupOperator `yaml:"operator"`
		Rules    []yaml.Node   `yaml:"rules"`
	}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: decoding validation group: %w", value.Line, err)
	}

	g.Operator = raw.Operator
	g.Rules = make([]Node, 0, len(raw.Rules))
	for i := range raw.Rules {
		child, err := DecodeYAML(&raw.Rules[i])
		if err != nil {
			return err
		}
		g.Rules = append(g.Rules, child)
	}
	return nil
}

func onlyKeys(m *yaml.Node, allowed ...string) error {
	if m.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", m.Line)
	}
next:
	for i := 0; i+1 < len(m.Content); i += 2 {
		key := m.Content[i]
		for _, a := range allowed {
			if key.Value == a {
				continue next
			}
		}
		return fmt.Errorf("line %d: field %s not found in validation rule", key.Line, key.Value)
	}
	return nil
}
