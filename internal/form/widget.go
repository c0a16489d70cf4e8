package form

// Widget identifies the UI control of a field. The evaluator only looks at a
// handful of widget families; any other identifier behaves like a text input.
type Widget string

// Widgets with special handling.
const (
	WidgetText        Widget = "text"
	WidgetTextarea    Widget = "textarea"
	WidgetEmail       Widget = "email"
	WidgetPassword    Widget = "password"
	WidgetURL         Widget = "url"
	WidgetTel         Widget = "tel"
	WidgetSelect      Widget = "select"
	WidgetRadio       Widget = "radio"
	WidgetHidden      Widget = "hidden"
	WidgetCheckbox    Widget = "checkbox"
	WidgetSwitch      Widget = "switch"
	WidgetNumber      Widget = "number"
	WidgetNumberInput Widget = "number-input"
	WidgetSlider      Widget = "slider"
	WidgetMultiSelect Widget = "multi-select"
	WidgetTags        Widget = "tags"
	WidgetDate        Widget = "date"
	WidgetDateTime    Widget = "datetime"
	WidgetTime        Widget = "time"
	WidgetObject      Widget = "object"
	WidgetGroup       Widget = "group"
	WidgetFieldset    Widget = "fieldset"
	WidgetRepeater    Widget = "repeater"
	WidgetRichText    Widget = "richtext"
	WidgetMarkdown    Widget = "markdown"
	WidgetFileUpload  Widget = "file-upload"
	WidgetImageUpload Widget = "image-upload"
)

var knownWidgets = map[Widget]bool{
	WidgetText: true, WidgetTextarea: true, WidgetEmail: true, WidgetPassword: true,
	WidgetURL: true, WidgetTel: true, WidgetSelect: true, WidgetRadio: true, WidgetHidden: true,
	WidgetCheckbox: true, WidgetSwitch: true,
	WidgetNumber: true, WidgetNumberInput: true, WidgetSlider: true,
	WidgetMultiSelect: true, WidgetTags: true,
	WidgetDate: true, WidgetDateTime: true, WidgetTime: true,
	WidgetObject: true, WidgetGroup: true, WidgetFieldset: true, WidgetRepeater: true,
	WidgetRichText: true, WidgetMarkdown: true,
	WidgetFileUpload: true, WidgetImageUpload: true,
}

// Known reports whether w is one of the widgets above.
func (w Widget) Known() bool { return knownWidgets[w] }

// IsBoolean reports whether the widget edits a boolean.
func (w Widget) IsBoolean() bool { return w == WidgetCheckbox || w == WidgetSwitch }

// IsNumeric reports whether the widget edits a number.
func (w Widget) IsNumeric() bool {
	return w == WidgetNumber || w == WidgetNumberInput || w == WidgetSlider
}

// IsList reports whether the widget edits a list of scalar values.
func (w Widget) IsList() bool { return w == WidgetMultiSelect || w == WidgetTags }

// IsObject reports whether the widget groups child fields into one object.
func (w Widget) IsObject() bool {
	return w == WidgetObject || w == WidgetGroup || w == WidgetFieldset
}

// IsRepeater reports whether the widget edits a list of child objects.
func (w Widget) IsRepeater() bool { return w == WidgetRepeater }

// IsDate reports whether the widget edits a date or time.
func (w Widget) IsDate() bool {
	return w == WidgetDate || w == WidgetDateTime || w == WidgetTime
}

// IsRichText reports whether the widget produces markup.
func (w Widget) IsRichText() bool { return w == WidgetRichText || w == WidgetMarkdown }

// IsUpload reports whether the widget uploads files as attachments.
func (w Widget) IsUpload() bool { return w == WidgetFileUpload || w == WidgetImageUpload }

// Fallback returns the value a field takes when no data, config or default
// supplies one. Each call returns a fresh container.
func (w Widget) Fallback() any {
	switch {
	case w.IsBoolean():
		return false
	case w.IsList(), w.IsRepeater():
		return []any{}
	case w.IsNumeric():
		return float64(0)
	case w.IsObject():
		return map[string]any{}
	}
	return ""
}
