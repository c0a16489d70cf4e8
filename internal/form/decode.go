package form

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/GyroZepelix/mithril-forms/internal/logic"
	"github.com/GyroZepelix/mithril-forms/internal/validation"
)

var (
	schemaKeys = []string{"fields", "exclude", "settings"}
	fieldKeys  = []string{
		"label", "widget", "default", "bindPath", "dataType", "rules", "validation",
		"itemSchema", "options", "uiProps", "placeholder", "sensitivity", "autoSave",
		"template", "searchable", "indexed",
	}
	ruleKeys = []string{"effect", "condition"}
)

// Decode parses a bare schema document (fields, exclude, settings).
func Decode(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UnmarshalYAML decodes a schema, rejecting unknown keys.
func (s *Schema) UnmarshalYAML(value *yaml.Node) error {
	value = resolve(value)
	if err := knownKeys(value, "schema", schemaKeys); err != nil {
		return err
	}
	var raw struct {
		Fields   Fields         `yaml:"fields"`
		Exclude  []string       `yaml:"exclude"`
		Settings map[string]any `yaml:"settings"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*s = Schema(raw)
	return nil
}

// UnmarshalYAML decodes a mapping of field definitions, keeping the mapping
// order.
func (fs *Fields) UnmarshalYAML(value *yaml.Node) error {
	value = resolve(value)
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping", value.Line)
	}
	out := make(Fields, 0, len(value.Content)/2)
	seen := make(map[string]bool, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		if seen[key] {
			return fmt.Errorf("line %d: duplicate field %q", value.Content[i].Line, key)
		}
		seen[key] = true

		f := &Field{}
		if err := f.UnmarshalYAML(value.Content[i+1]); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		f.Key = key
		out = append(out, f)
	}
	*fs = out
	return nil
}

// UnmarshalYAML decodes a field definition. The key is assigned by the
// enclosing Fields.
func (f *Field) UnmarshalYAML(value *yaml.Node) error {
	value = resolve(value)
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		*f = Field{}
		return nil
	}
	if err := knownKeys(value, "field definition", fieldKeys); err != nil {
		return err
	}

	var raw struct {
		Label       string         `yaml:"label"`
		Widget      Widget         `yaml:"widget"`
		Default     any            `yaml:"default"`
		BindPath    string         `yaml:"bindPath"`
		DataType    DataType       `yaml:"dataType"`
		Rules       Rules          `yaml:"rules"`
		Validation  yaml.Node      `yaml:"validation"`
		ItemSchema  *Schema        `yaml:"itemSchema"`
		Options     []Option       `yaml:"options"`
		UIProps     map[string]any `yaml:"uiProps"`
		Placeholder string         `yaml:"placeholder"`
		Sensitivity Sensitivity    `yaml:"sensitivity"`
		AutoSave    bool           `yaml:"autoSave"`
		Template    string         `yaml:"template"`
		Searchable  bool           `yaml:"searchable"`
		Indexed     bool           `yaml:"indexed"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	*f = Field{
		Label:       raw.Label,
		Widget:      raw.Widget,
		Default:     raw.Default,
		BindPath:    raw.BindPath,
		DataType:    raw.DataType,
		Rules:       raw.Rules,
		ItemSchema:  raw.ItemSchema,
		Options:     raw.Options,
		UIProps:     raw.UIProps,
		Placeholder: raw.Placeholder,
		Sensitivity: raw.Sensitivity,
		AutoSave:    raw.AutoSave,
		Template:    raw.Template,
		Searchable:  raw.Searchable,
		Indexed:     raw.Indexed,
	}
	if present(&raw.Validation) {
		v, err := validation.DecodeYAML(&raw.Validation)
		if err != nil {
			return err
		}
		f.Validation = v
	}
	return nil
}

// UnmarshalYAML accepts a single rule or a list of rules.
func (rs *Rules) UnmarshalYAML(value *yaml.Node) error {
	value = resolve(value)
	switch value.Kind {
	case yaml.MappingNode:
		var r Rule
		if err := r.UnmarshalYAML(value); err != nil {
			return err
		}
		*rs = Rules{r}
		return nil
	case yaml.SequenceNode:
		out := make(Rules, 0, len(value.Content))
		for _, item := range value.Content {
			var r Rule
			if err := r.UnmarshalYAML(item); err != nil {
				return err
			}
			out = append(out, r)
		}
		*rs = out
		return nil
	}
	return fmt.Errorf("line %d: rules must be a rule or a list of rules", value.Line)
}

// UnmarshalYAML decodes an effect and its condition tree.
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	value = resolve(value)
	if err := knownKeys(value, "rule", ruleKeys); err != nil {
		return err
	}
	var raw struct {
		Effect    Effect    `yaml:"effect"`
		Condition yaml.Node `yaml:"condition"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	r.Effect = raw.Effect
	r.Condition = nil
	if present(&raw.Condition) {
		c, err := logic.DecodeYAML(&raw.Condition)
		if err != nil {
			return err
		}
		r.Condition = c
	}
	return nil
}

// present reports whether an optional node key was given a non-null value.
// Absent keys leave the node zero.
func present(n *yaml.Node) bool {
	return n.Kind != 0 && !(n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

// UnmarshalYAML accepts a single type name or a list of names.
func (d *DataType) UnmarshalYAML(value *yaml.Node) error {
	value = resolve(value)
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value == "" || value.Tag == "!!null" {
			*d = nil
			return nil
		}
		*d = DataType{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*d = list
		return nil
	}
	return fmt.Errorf("line %d: dataType must be a name or a list of names", value.Line)
}

// MarshalJSON writes the fields as an object in declaration order.
func (fs Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func resolve(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		return n.Alias
	}
	return n
}

// knownKeys rejects mapping keys outside allowed. Types with custom
// unmarshalers do not inherit the decoder's KnownFields setting.
func knownKeys(m *yaml.Node, what string, allowed []string) error {
	if m.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: %s must be a mapping", m.Line, what)
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
			return fmt.Errorf("line %d: field %s not found in %s", key.Line, key.Value, what)
		}
	}
	return nil
}
