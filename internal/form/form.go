// Package form defines the declarative form schema: an ordered set of field
// definitions with behavioral rules, validation trees and nested item
// schemas. Schemas are read-only once decoded and are passed explicitly to
// every evaluation.
package form

import (
	"github.com/GyroZepelix/mithril-forms/internal/logic"
	"github.com/GyroZepelix/mithril-forms/internal/validation"
)

// Effect is the outcome a field rule produces while its condition holds.
type Effect string

// Supported rule effects.
const (
	EffectShow     Effect = "SHOW"
	EffectHide     Effect = "HIDE"
	EffectDisable  Effect = "DISABLE"
	EffectEnable   Effect = "ENABLE"
	EffectRequire  Effect = "REQUIRE"
	EffectOptional Effect = "OPTIONAL"
)

// Known reports whether e is a supported effect.
func (e Effect) Known() bool {
	switch e {
	case EffectShow, EffectHide, EffectDisable, EffectEnable, EffectRequire, EffectOptional:
		return true
	}
	return false
}

// Sensitivity classifies the data a field collects for compliance tooling.
type Sensitivity string

// Supported sensitivity levels.
const (
	SensitivityPublic       Sensitivity = "public"
	SensitivityInternal     Sensitivity = "internal"
	SensitivityConfidential Sensitivity = "confidential"
	SensitivityRestricted   Sensitivity = "restricted"
)

// Known reports whether s is a supported sensitivity level. The empty level
// is valid and means unclassified.
func (s Sensitivity) Known() bool {
	switch s {
	case "", SensitivityPublic, SensitivityInternal, SensitivityConfidential, SensitivityRestricted:
		return true
	}
	return false
}

// Rule attaches an effect to a condition tree.
type Rule struct {
	Effect    Effect     `yaml:"effect" json:"effect"`
	Condition logic.Node `yaml:"condition" json:"condition"`
}

// Option is one selectable choice of a select-like widget.
type Option struct {
	Label string `yaml:"label" json:"label"`
	Value any    `yaml:"value" json:"value"`
}

// Field describes one input of a form.
type Field struct {
	// Key is the field's name within its schema. It is taken from the
	// mapping key and used as the data path of the field's value.
	Key string `yaml:"-" json:"-"`

	Label       string          `yaml:"label,omitempty" json:"label,omitempty"`
	Widget      Widget          `yaml:"widget,omitempty" json:"widget,omitempty"`
	Default     any             `yaml:"default,omitempty" json:"default,omitempty"`
	BindPath    string          `yaml:"bindPath,omitempty" json:"bindPath,omitempty"`
	DataType    DataType        `yaml:"dataType,omitempty" json:"dataType,omitempty"`
	Rules       Rules           `yaml:"rules,omitempty" json:"rules,omitempty"`
	Validation  validation.Node `yaml:"validation,omitempty" json:"validation,omitempty"`
	ItemSchema  *Schema         `yaml:"itemSchema,omitempty" json:"itemSchema,omitempty"`
	Options     []Option        `yaml:"options,omitempty" json:"options,omitempty"`
	UIProps     map[string]any  `yaml:"uiProps,omitempty" json:"uiProps,omitempty"`
	Placeholder string          `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Sensitivity Sensitivity     `yaml:"sensitivity,omitempty" json:"sensitivity,omitempty"`
	AutoSave    bool            `yaml:"autoSave,omitempty" json:"autoSave,omitempty"`
	Template    string          `yaml:"template,omitempty" json:"template,omitempty"`

	// Searchable includes the field in full-text search over stored
	// submissions. Indexed adds an expression index on the stored value.
	Searchable bool `yaml:"searchable,omitempty" json:"searchable,omitempty"`
	Indexed    bool `yaml:"indexed,omitempty" json:"indexed,omitempty"`
}

// Path returns the path used to look the field up in config data: the bind
// path when set, the key otherwise.
func (f *Field) Path() string {
	if f.BindPath != "" {
		return f.BindPath
	}
	return f.Key
}

// IsContainer reports whether the field holds child fields.
func (f *Field) IsContainer() bool { return f.ItemSchema != nil }

// ValueType names the type a submitted leaf value is cast to: the first
// declared dataType, else "number" for numeric widgets, "boolean" for
// checkbox and switch, and "string" for everything else.
func (f *Field) ValueType() string {
	if t := f.DataType.Primary(); t != "" {
		return t
	}
	switch {
	case f.Widget.IsNumeric():
		return "number"
	case f.Widget.IsBoolean():
		return "boolean"
	}
	return "string"
}

// Schema is an ordered set of fields plus the keys that must never be
// persisted.
type Schema struct {
	Fields   Fields         `yaml:"fields" json:"fields"`
	Exclude  []string       `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	Settings map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Excludes reports whether key is listed in the schema's exclude list.
func (s *Schema) Excludes(key string) bool {
	for _, k := range s.Exclude {
		if k == key {
			return true
		}
	}
	return false
}

// Fields is an ordered list of field definitions. In YAML and JSON it is an
// object keyed by field key, in declaration order.
type Fields []*Field

// Get returns the field with the given key.
func (fs Fields) Get(key string) (*Field, bool) {
	for _, f := range fs {
		if f.Key == key {
			return f, true
		}
	}
	return nil, false
}

// Keys returns the field keys in declaration order.
func (fs Fields) Keys() []string {
	keys := make([]string, len(fs))
	for i, f := range fs {
		keys[i] = f.Key
	}
	return keys
}

// DataType lists the declared data types of a field. YAML accepts a single
// name or a list.
type DataType []string

// Primary returns the first declared type, or "" when none is declared.
func (d DataType) Primary() string {
	if len(d) == 0 {
		return ""
	}
	return d[0]
}

// Rules is the ordered list of rules attached to a field. YAML accepts a
// single rule or a list.
type Rules []Rule
