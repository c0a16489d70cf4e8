package schema

import (
	"fmt"
	"slices"

	"github.com/GyroZepelix/mithril-forms/internal/form"
)

// ChangeType describes the kind of change detected between a loaded form and
// its registered state in the database.
type ChangeType string

// Supported change types.
const (
	ChangeCreateForm  ChangeType = "create_form"
	ChangeAddField    ChangeType = "add_field"
	ChangeRemoveField ChangeType = "remove_field"
	ChangeAlterField  ChangeType = "alter_field"
	ChangeAddIndex    ChangeType = "add_index"
	ChangeDropIndex   ChangeType = "drop_index"
)

// Change represents a single registration change with its SQL and safety
// classification.
type Change struct {
	Type ChangeType

	// Form is the affected form name.
	Form string

	// Field is the dotted path of the affected field, if applicable.
	Field string

	// SQL is the DDL statement to execute for this change. Changes that only
	// touch the stored definition have no SQL.
	SQL string

	// Safe indicates whether this change can be applied without invalidating
	// stored submissions. Removing a field or changing the stored shape of a
	// value is breaking.
	Safe bool

	// Detail is a human-readable description of the change.
	Detail string
}

// DiffForm compares a loaded form against its registered state. If existing
// is nil, the form is new and a ChangeCreateForm is returned together with
// its index changes.
func DiffForm(loaded Form, existing *Form) []Change {
	if existing == nil {
		changes := []Change{{
			Type:   ChangeCreateForm,
			Form:   loaded.Name,
			Safe:   true,
			Detail: fmt.Sprintf("register new form %s", loaded.Name),
		}}
		for _, key := range loaded.IndexedFields() {
			changes = append(changes, addIndex(loaded.Name, key))
		}
		return changes
	}

	changes := diffFields(loaded.Name, loaded.Fields, existing.Fields, "")

	oldIdx, newIdx := existing.IndexedFields(), loaded.IndexedFields()
	for _, key := range newIdx {
		if !slices.Contains(oldIdx, key) {
			changes = append(changes, addIndex(loaded.Name, key))
		}
	}
	for _, key := range oldIdx {
		if !slices.Contains(newIdx, key) {
			changes = append(changes, Change{
				Type:   ChangeDropIndex,
				Form:   loaded.Name,
				Field:  key,
				SQL:    GenerateDropIndex(loaded.Name, key),
				Safe:   true,
				Detail: fmt.Sprintf("drop index on %s.%s", loaded.Name, key),
			})
		}
	}

	return changes
}

func addIndex(formName, key string) Change {
	return Change{
		Type:   ChangeAddIndex,
		Form:   formName,
		Field:  key,
		SQL:    GenerateFieldIndex(formName, key),
		Safe:   true,
		Detail: fmt.Sprintf("add index on %s.%s", formName, key),
	}
}

// diffFields compares one level of fields and recurses into item schemas
// present on both sides.
func diffFields(formName string, loaded, existing form.Fields, prefix string) []Change {
	var changes []Change

	for _, f := range loaded {
		if _, ok := existing.Get(f.Key); ok {
			continue
		}
		changes = append(changes, Change{
			Type:   ChangeAddField,
			Form:   formName,
			Field:  prefix + f.Key,
			Safe:   true,
			Detail: fmt.Sprintf("add field %s.%s (%s)", formName, prefix+f.Key, storageKind(f)),
		})
	}

	for _, f := range existing {
		if _, ok := loaded.Get(f.Key); ok {
			continue
		}
		changes = append(changes, Change{
			Type:   ChangeRemoveField,
			Form:   formName,
			Field:  prefix + f.Key,
			Safe:   false,
			Detail: fmt.Sprintf("remove field %s.%s [BREAKING: stored values are no longer served]", formName, prefix+f.Key),
		})
	}

	for _, lf := range loaded {
		ef, ok := existing.Get(lf.Key)
		if !ok {
			continue
		}
		path := prefix + lf.Key

		oldKind, newKind := storageKind(ef), storageKind(lf)
		switch {
		case oldKind != newKind:
			changes = append(changes, Change{
				Type:   ChangeAlterField,
				Form:   formName,
				Field:  path,
				Safe:   false,
				Detail: fmt.Sprintf("change stored type of %s.%s from %s to %s [BREAKING]", formName, path, oldKind, newKind),
			})
		case widgetOf(lf) != widgetOf(ef):
			changes = append(changes, Change{
				Type:   ChangeAlterField,
				Form:   formName,
				Field:  path,
				Safe:   true,
				Detail: fmt.Sprintf("change widget of %s.%s from %s to %s", formName, path, widgetOf(ef), widgetOf(lf)),
			})
		}

		if lf.ItemSchema != nil && ef.ItemSchema != nil {
			changes = append(changes, diffFields(formName, lf.ItemSchema.Fields, ef.ItemSchema.Fields, path+".")...)
		}
	}

	return changes
}

func widgetOf(f *form.Field) form.Widget {
	if f.Widget == "" {
		return form.WidgetText
	}
	return f.Widget
}

// storageKind names the JSON shape a field's value is persisted as.
func storageKind(f *form.Field) string {
	switch {
	case f.ItemSchema != nil && f.Widget.IsRepeater():
		return "array of object"
	case f.ItemSchema != nil:
		return "object"
	case f.Widget.IsList():
		return "array"
	}
	switch f.ValueType() {
	case "number", "integer", "float":
		return "number"
	case "boolean":
		return "boolean"
	}
	return "string"
}
