// Package schema handles loading, validating and registering YAML form
// definitions for Mithril Forms.
package schema

import (
	"github.com/GyroZepelix/mithril-forms/internal/form"
)

// Form is a parsed YAML form definition.
type Form struct {
	// Name is the form identifier (snake_case), used in API routes and as the
	// form key of stored submissions.
	Name string `yaml:"name" json:"name"`

	// Label is the human-readable title of the form.
	Label string `yaml:"label" json:"label"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Public forms accept anonymous evaluate, submit and draft calls.
	Public bool `yaml:"public" json:"public"`

	// Exclude lists top-level field keys that are never persisted.
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`

	Settings map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`

	Fields form.Fields `yaml:"fields" json:"fields"`

	// Hash is the SHA256 hex digest of the raw YAML file bytes. It is
	// computed after loading and is not deserialized from YAML.
	Hash string `yaml:"-" json:"-"`

	// Source holds the raw YAML the form was parsed from.
	Source []byte `yaml:"-" json:"-"`
}

// Schema returns the evaluation schema of the form.
func (f *Form) Schema() *form.Schema {
	return &form.Schema{
		Fields:   f.Fields,
		Exclude:  f.Exclude,
		Settings: f.Settings,
	}
}

// IndexedFields returns the keys of top-level fields marked indexed, in
// declaration order.
func (f *Form) IndexedFields() []string {
	var keys []string
	for _, fd := range f.Fields {
		if fd.Indexed && !fd.IsContainer() {
			keys = append(keys, fd.Key)
		}
	}
	return keys
}

// SearchableFields returns the keys of top-level fields marked searchable, in
// declaration order.
func (f *Form) SearchableFields() []string {
	var keys []string
	for _, fd := range f.Fields {
		if fd.Searchable && !fd.IsContainer() {
			keys = append(keys, fd.Key)
		}
	}
	return keys
}
