// Package formstate derives the state of a form from its schema and data:
// per-field visibility, enablement, required-ness, resolved values and
// validation errors, plus the payloads that are safe to persist on submit and
// on autosave.
//
// Every function here is pure. Inputs are never mutated and each call
// allocates its own output, so the package is safe for concurrent use.
package formstate

import (
	"log/slog"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/GyroZepelix/mithril-forms/internal/datapath"
	"github.com/GyroZepelix/mithril-forms/internal/form"
	"github.com/GyroZepelix/mithril-forms/internal/jsonvalue"
	"github.com/GyroZepelix/mithril-forms/internal/logic"
	"github.com/GyroZepelix/mithril-forms/internal/validation"
)

// Options controls diagnostics. It never changes computed results.
type Options struct {
	// Debug logs every computed field state at debug level.
	Debug bool
	// Logger receives debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// FieldState is the derived state of one field.
type FieldState struct {
	Value       any            `json:"value"`
	IsVisible   bool           `json:"isVisible"`
	IsDisabled  bool           `json:"isDisabled"`
	IsRequired  bool           `json:"isRequired"`
	Error       *string        `json:"error"`
	Label       string         `json:"label,omitempty"`
	Widget      form.Widget    `json:"widget,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	Options     []form.Option  `json:"options,omitempty"`
	UIProps     map[string]any `json:"uiProps,omitempty"`
	Children    *Children      `json:"children,omitempty"`
}

// States maps field keys to their state for one level of the schema tree.
type States map[string]*FieldState

// Children holds the child states of a container field: one States per
// array element when List is set, a single States otherwise.
type Children struct {
	List   bool
	Items  []States
	Object States
}

// MarshalJSON writes an array of objects for list children and a single
// object otherwise.
func (c *Children) MarshalJSON() ([]byte, error) {
	if c.List {
		items := c.Items
		if items == nil {
			items = []States{}
		}
		return json.Marshal(items)
	}
	obj := c.Object
	if obj == nil {
		obj = States{}
	}
	return json.Marshal(obj)
}

// FormState is the result of Compute.
type FormState struct {
	Fields  States         `json:"fields"`
	IsValid bool           `json:"isValid"`
	Data    map[string]any `json:"data"`
}

// Compute derives the state of every field of s from the working data, with
// config as a fallback value source. Working data is sanitized first; the
// sanitized copy is returned as FormState.Data.
func Compute(s *form.Schema, working, config map[string]any, opts Options) FormState {
	c := computer{debug: opts.Debug, log: opts.logger()}
	data := Sanitize(s, working)
	fields := c.level(s, data, config, "", inherited{})
	valid := isValid(fields)
	if c.debug {
		c.log.Debug("form state computed", "fields", len(fields), "valid", valid)
	}
	return FormState{Fields: fields, IsValid: valid, Data: data}
}

type computer struct {
	debug bool
	log   *slog.Logger
}

// inherited carries the state of the enclosing containers down the tree. A
// field inside a hidden container is hidden, one inside a disabled container
// is disabled.
type inherited struct {
	hidden   bool
	disabled bool
}

// level computes the states of one schema level against that level's
// sanitized working data.
func (c *computer) level(s *form.Schema, working, config map[string]any, prefix string, parent inherited) States {
	if s == nil {
		return States{}
	}
	out := make(States, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Key] = c.field(f, working, config, prefix+f.Key, parent)
	}
	return out
}

func (c *computer) field(f *form.Field, working, config map[string]any, path string, parent inherited) *FieldState {
	active, hasShow := effects(f.Rules, working)

	st := &FieldState{
		Label:       f.Label,
		Widget:      f.Widget,
		Placeholder: f.Placeholder,
		Options:     f.Options,
		UIProps:     f.UIProps,
	}

	switch {
	case hasShow:
		st.IsVisible = active[form.EffectShow]
	case active[form.EffectHide]:
		st.IsVisible = false
	default:
		st.IsVisible = true
	}
	st.IsDisabled = active[form.EffectDisable]
	if parent.hidden {
		st.IsVisible = false
	}
	if parent.disabled {
		st.IsDisabled = true
	}

	switch {
	case active[form.EffectRequire]:
		st.IsRequired = true
	case active[form.EffectOptional]:
		st.IsRequired = false
	default:
		st.IsRequired = validation.HasRequired(f.Validation)
	}

	st.Value = resolveValue(f, working, config)
	if f.Template != "" {
		st.Value = renderTemplate(f.Template, working)
	}

	if f.ItemSchema != nil {
		st.Children = c.children(f.ItemSchema, st.Value, path, inherited{hidden: !st.IsVisible, disabled: st.IsDisabled})
	}

	if st.IsVisible && !st.IsDisabled {
		switch {
		case active[form.EffectOptional] && jsonvalue.IsEmpty(st.Value):
		case f.Validation != nil:
			st.Error = validation.Evaluate(f.Validation, st.Value)
		case st.IsRequired && jsonvalue.IsEmpty(st.Value):
			msg := validation.MsgRequired
			st.Error = &msg
		}
	}

	if c.debug {
		c.log.Debug("field state",
			"path", path,
			"visible", st.IsVisible,
			"disabled", st.IsDisabled,
			"required", st.IsRequired,
			"error", st.Error,
		)
	}
	return st
}

// children computes the child states of a container. Child levels never see
// config data.
func (c *computer) children(item *form.Schema, value any, path string, parent inherited) *Children {
	if list, ok := value.([]any); ok {
		ch := &Children{List: true, Items: make([]States, len(list))}
		for i, el := range list {
			data := Sanitize(item, asObject(el))
			ch.Items[i] = c.level(item, data, nil, path+"."+strconv.Itoa(i)+".", parent)
		}
		return ch
	}
	data := Sanitize(item, asObject(value))
	return &Children{Object: c.level(item, data, nil, path+".", parent)}
}

// effects evaluates every rule and returns the set of active effects and
// whether any rule carries a SHOW effect.
func effects(rules form.Rules, data map[string]any) (map[form.Effect]bool, bool) {
	active := make(map[form.Effect]bool, len(rules))
	hasShow := false
	for _, r := range rules {
		if r.Effect == form.EffectShow {
			hasShow = true
		}
		if logic.Evaluate(r.Condition, data) {
			active[r.Effect] = true
		}
	}
	return active, hasShow
}

// resolveValue picks the first present value from the working data, the
// config data at the bind path, the field default and the widget fallback.
func resolveValue(f *form.Field, working, config map[string]any) any {
	if v, ok := datapath.Lookup(working, f.Key); ok {
		return v
	}
	if config != nil {
		if v, ok := datapath.Lookup(config, f.Path()); ok {
			return v
		}
	}
	if f.Default != nil {
		return clone(f.Default)
	}
	return f.Widget.Fallback()
}

// isValid reports whether no visible field carries an error. Children of
// hidden or disabled containers are not considered.
func isValid(states States) bool {
	for _, st := range states {
		if !st.IsVisible {
			continue
		}
		if st.Error != nil {
			return false
		}
		if st.IsDisabled || st.Children == nil {
			continue
		}
		if st.Children.List {
			for _, item := range st.Children.Items {
				if !isValid(item) {
					return false
				}
			}
		} else if !isValid(st.Children.Object) {
			return false
		}
	}
	return true
}
