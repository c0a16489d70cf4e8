// Package openapi describes a form's HTTP surface as an OpenAPI 3 document:
// the evaluate, submit and draft operations plus a component schema for the
// finalized submission payload.
package openapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/GyroZepelix/mithril-forms/internal/datapath"
	"github.com/GyroZepelix/mithril-forms/internal/form"
	"github.com/GyroZepelix/mithril-forms/internal/jsonvalue"
	"github.com/GyroZepelix/mithril-forms/internal/schema"
	"github.com/GyroZepelix/mithril-forms/internal/validation"
)

const (
	specVersion = "3.0.3"
	docVersion  = "1.0.0"
)

// Build returns the validated OpenAPI document for f.
func Build(ctx context.Context, f *schema.Form) (*openapi3.T, error) {
	name := ComponentName(f.Name)
	submission := name + "Submission"

	title := f.Label
	if title == "" {
		title = schema.Humanize(f.Name)
	}

	doc := &openapi3.T{
		OpenAPI: specVersion,
		Info: &openapi3.Info{
			Title:       title,
			Description: f.Description,
			Version:     docVersion,
		},
		Components: &openapi3.Components{
			Schemas: openapi3.Schemas{
				submission:      openapi3.NewSchemaRef("", SubmissionSchema(f.Schema())),
				"FormInput":     openapi3.NewSchemaRef("", formInputSchema()),
				"FormState":     openapi3.NewSchemaRef("", formStateSchema()),
				"AutoSave":      openapi3.NewSchemaRef("", autoSaveSchema()),
				"ErrorResponse": openapi3.NewSchemaRef("", errorSchema()),
			},
		},
	}

	ref := func(component string) *openapi3.SchemaRef {
		return &openapi3.SchemaRef{
			Ref:   "#/components/schemas/" + component,
			Value: doc.Components.Schemas[component].Value,
		}
	}
	input := ref("FormInput")

	base := "/api/forms/" + f.Name
	evaluate := operation(f.Name+"Evaluate", "Compute the state of every field", input,
		http.StatusOK, envelope(ref("FormState")))

	submit := operation(f.Name+"Submit", "Finalize and store a submission", input,
		http.StatusCreated, envelope(submissionRecord(ref(submission))))
	addError(submit, http.StatusUnprocessableEntity, "The submission is invalid", ref("ErrorResponse"))

	saveDraft := operation(f.Name+"SaveDraft", "Store the autosave-eligible part of the data", input,
		http.StatusOK, envelope(ref("AutoSave")))
	saveDraft.AddParameter(openapi3.NewPathParameter("draftID").WithSchema(openapi3.NewStringSchema()))

	getDraft := operation(f.Name+"GetDraft", "Read a stored draft", nil,
		http.StatusOK, envelope(draftRecord()))
	getDraft.AddParameter(openapi3.NewPathParameter("draftID").WithSchema(openapi3.NewStringSchema()))
	addError(getDraft, http.StatusNotFound, "No draft with this ID", ref("ErrorResponse"))

	doc.Paths = openapi3.NewPaths(
		openapi3.WithPath(base+"/evaluate", &openapi3.PathItem{Post: evaluate}),
		openapi3.WithPath(base+"/submissions", &openapi3.PathItem{Post: submit}),
		openapi3.WithPath(base+"/drafts/{draftID}", &openapi3.PathItem{Get: getDraft, Put: saveDraft}),
	)

	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("validating OpenAPI document for %q: %w", f.Name, err)
	}
	return doc, nil
}

// ComponentName turns a form name into a schema component name:
// contact_request becomes ContactRequest.
func ComponentName(formName string) string {
	return strings.ReplaceAll(schema.Humanize(formName), " ", "")
}

// SubmissionSchema describes the payload Finalize produces for s: excluded
// fields are absent, leaves carry their cast type, containers nest.
func SubmissionSchema(s *form.Schema) *openapi3.Schema {
	obj := openapi3.NewObjectSchema()
	if s == nil {
		return obj
	}
	for _, f := range s.Fields {
		if s.Excludes(f.Key) {
			continue
		}
		prop := fieldSchema(f)
		segs := datapath.Split(f.Key)
		parent := obj
		for _, seg := range segs[:len(segs)-1] {
			parent = childObject(parent, seg)
		}
		last := segs[len(segs)-1]
		parent.WithProperty(last, prop)
		if alwaysRequired(f) {
			parent.Required = append(parent.Required, last)
		}
	}
	return obj
}

// childObject returns the object property name of parent, creating it.
func childObject(parent *openapi3.Schema, name string) *openapi3.Schema {
	if ref, ok := parent.Properties[name]; ok && ref.Value != nil {
		return ref.Value
	}
	child := openapi3.NewObjectSchema()
	parent.WithProperty(name, child)
	return child
}

// alwaysRequired reports whether a field is present and non-empty in every
// successful submission: required by validation and not subject to rules
// that could hide it or waive the requirement.
func alwaysRequired(f *form.Field) bool {
	return len(f.Rules) == 0 && validation.HasRequired(f.Validation)
}

func fieldSchema(f *form.Field) *openapi3.Schema {
	var s *openapi3.Schema
	switch {
	case f.ItemSchema != nil && f.Widget.IsRepeater():
		s = openapi3.NewArraySchema().WithItems(SubmissionSchema(f.ItemSchema))
	case f.ItemSchema != nil:
		s = SubmissionSchema(f.ItemSchema)
	case f.Widget.IsList():
		s = openapi3.NewArraySchema().WithItems(withOptions(leafSchema(f), f.Options))
	default:
		s = withOptions(leafSchema(f), f.Options)
		applyConstraints(s, f.Validation)
	}

	s.Title = f.Label
	if f.Placeholder != "" {
		s.Description = f.Placeholder
	}
	if f.Sensitivity != "" {
		s.Extensions = map[string]any{"x-sensitivity": string(f.Sensitivity)}
	}
	return s
}

func leafSchema(f *form.Field) *openapi3.Schema {
	switch f.ValueType() {
	case "number", "float":
		return openapi3.NewFloat64Schema()
	case "integer":
		return openapi3.NewIntegerSchema()
	case "boolean":
		return openapi3.NewBoolSchema()
	case "date":
		return openapi3.NewStringSchema().WithFormat("date")
	case "string":
		s := openapi3.NewStringSchema()
		switch f.Widget {
		case form.WidgetEmail:
			s.Format = "email"
		case form.WidgetURL:
			s.Format = "uri"
		case form.WidgetDate:
			s.Format = "date"
		case form.WidgetDateTime:
			s.Format = "date-time"
		}
		return s
	}
	// Unknown data types pass through uncast.
	return &openapi3.Schema{}
}

// withOptions adds an enum for string leaves whose options all carry
// string values.
func withOptions(s *openapi3.Schema, options []form.Option) *openapi3.Schema {
	if len(options) == 0 || s.Type == nil || !s.Type.Is(openapi3.TypeString) {
		return s
	}
	values := make([]any, 0, len(options))
	for _, o := range options {
		v, ok := o.Value.(string)
		if !ok {
			return s
		}
		values = append(values, v)
	}
	return s.WithEnum(values...)
}

// applyConstraints copies checks that hold for every stored value: the
// leaves of a lone rule or of an "and" group.
func applyConstraints(s *openapi3.Schema, node validation.Node) {
	var rules []validation.Rule
	switch n := node.(type) {
	case validation.Rule:
		rules = []validation.Rule{n}
	case validation.Group:
		if n.Operator != validation.And {
			return
		}
		for _, child := range n.Rules {
			if r, ok := child.(validation.Rule); ok {
				rules = append(rules, r)
			}
		}
	}

	isString := s.Type != nil && s.Type.Is(openapi3.TypeString)
	isNumber := s.Type != nil && (s.Type.Is(openapi3.TypeNumber) || s.Type.Is(openapi3.TypeInteger))
	for _, r := range rules {
		switch r.Type {
		case validation.TypeRegex:
			if p, ok := r.Value.(string); ok && isString {
				s.Pattern = p
			}
		case validation.TypeRequired:
			if isString {
				s.MinLength = 1
			}
		case validation.TypeMin:
			if v, ok := jsonvalue.Number(r.Value); ok && isNumber {
				s.Min = &v
			}
		case validation.TypeMax:
			if v, ok := jsonvalue.Number(r.Value); ok && isNumber {
				s.Max = &v
			}
		}
	}
}

func operation(id, summary string, body *openapi3.SchemaRef, status int, resp *openapi3.Schema) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = id
	op.Summary = summary
	if body != nil {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(body),
		}
	}
	op.Responses = openapi3.NewResponses(openapi3.WithStatus(status, &openapi3.ResponseRef{
		Value: openapi3.NewResponse().WithDescription(http.StatusText(status)).WithJSONSchema(resp),
	}))
	return op
}

func addError(op *openapi3.Operation, status int, description string, body *openapi3.SchemaRef) {
	op.Responses.Set(fmt.Sprint(status), &openapi3.ResponseRef{
		Value: openapi3.NewResponse().WithDescription(description).WithJSONSchemaRef(body),
	})
}

// envelope wraps a payload in the {"data": ...} response envelope.
func envelope(ref any) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	switch v := ref.(type) {
	case *openapi3.SchemaRef:
		s.WithPropertyRef("data", v)
	case *openapi3.Schema:
		s.WithProperty("data", v)
	}
	s.Required = []string{"data"}
	return s
}

func anyObject() *openapi3.Schema {
	return openapi3.NewObjectSchema().WithAnyAdditionalProperties()
}

func formInputSchema() *openapi3.Schema {
	s := openapi3.NewObjectSchema().
		WithProperty("data", anyObject()).
		WithProperty("config", anyObject())
	s.Required = []string{"data"}
	return s
}

func formStateSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("fields", anyObject()).
		WithProperty("isValid", openapi3.NewBoolSchema()).
		WithProperty("data", anyObject())
}

func autoSaveSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("shouldSave", openapi3.NewBoolSchema()).
		WithProperty("payload", anyObject())
}

func submissionRecord(data *openapi3.SchemaRef) *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("form", openapi3.NewStringSchema()).
		WithPropertyRef("data", data).
		WithProperty("created_at", openapi3.NewDateTimeSchema())
}

func draftRecord() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("form", openapi3.NewStringSchema()).
		WithProperty("payload", anyObject()).
		WithProperty("updated_at", openapi3.NewDateTimeSchema())
}

func errorSchema() *openapi3.Schema {
	detail := openapi3.NewObjectSchema().
		WithProperty("field", openapi3.NewStringSchema()).
		WithProperty("message", openapi3.NewStringSchema())
	body := openapi3.NewObjectSchema().
		WithProperty("code", openapi3.NewStringSchema()).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("details", openapi3.NewArraySchema().WithItems(detail))
	return openapi3.NewObjectSchema().WithProperty("error", body)
}
