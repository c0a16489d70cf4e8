package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/GyroZepelix/mithril-forms/internal/formstate"
	"github.com/GyroZepelix/mithril-forms/internal/schema"
)

type listFormsInput struct{}

type formSummary struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Public      bool     `json:"public"`
	Fields      []string `json:"fields"`
}

type listFormsOutput struct {
	Forms []formSummary `json:"forms"`
}

func (s *Server) handleListForms(_ context.Context, _ *mcp.CallToolRequest, _ listFormsInput) (*mcp.CallToolResult, listFormsOutput, error) {
	out := listFormsOutput{Forms: []formSummary{}}
	for _, f := range s.sortedForms() {
		keys := make([]string, 0, len(f.Fields))
		for _, fd := range f.Fields {
			keys = append(keys, fd.Key)
		}
		out.Forms = append(out.Forms, formSummary{
			Name:        f.Name,
			Label:       f.Label,
			Description: f.Description,
			Public:      f.Public,
			Fields:      keys,
		})
	}
	return nil, out, nil
}

type dataInput struct {
	Form       string         `json:"form,omitempty"       jsonschema:"Name of a loaded form definition"`
	Definition string         `json:"definition,omitempty" jsonschema:"Inline YAML form definition, used instead of form"`
	Data       map[string]any `json:"data,omitempty"       jsonschema:"Form data, keyed by field key or bind path"`
	Config     map[string]any `json:"config,omitempty"     jsonschema:"Host configuration read by field templates"`
}

type evaluateOutput struct {
	IsValid bool           `json:"isValid"`
	Fields  map[string]any `json:"fields"`
	Data    map[string]any `json:"data"`
}

func (s *Server) handleEvaluate(_ context.Context, _ *mcp.CallToolRequest, input dataInput) (*mcp.CallToolResult, evaluateOutput, error) {
	f, err := s.resolve(input.Form, input.Definition)
	if err != nil {
		return errResult(err), evaluateOutput{}, nil
	}

	state := formstate.Compute(f.Schema(), input.Data, input.Config, s.opts)

	// Field states nest through Children, which has its own JSON shape, so
	// they are passed through as plain JSON objects.
	fields, err := toObject(state.Fields)
	if err != nil {
		return errResult(err), evaluateOutput{}, nil
	}
	return nil, evaluateOutput{IsValid: state.IsValid, Fields: fields, Data: nonNilMap(state.Data)}, nil
}

type finalizeOutput struct {
	Success bool              `json:"success"`
	Data    map[string]any    `json:"data"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (s *Server) handleFinalize(_ context.Context, _ *mcp.CallToolRequest, input dataInput) (*mcp.CallToolResult, finalizeOutput, error) {
	f, err := s.resolve(input.Form, input.Definition)
	if err != nil {
		return errResult(err), finalizeOutput{}, nil
	}

	res := formstate.Finalize(f.Schema(), input.Data, input.Config, s.opts)
	return nil, finalizeOutput{Success: res.Success, Data: nonNilMap(res.Data), Errors: res.Errors}, nil
}

type autoSaveOutput struct {
	ShouldSave bool           `json:"shouldSave"`
	Payload    map[string]any `json:"payload"`
}

func (s *Server) handleAutoSave(_ context.Context, _ *mcp.CallToolRequest, input dataInput) (*mcp.CallToolResult, autoSaveOutput, error) {
	f, err := s.resolve(input.Form, input.Definition)
	if err != nil {
		return errResult(err), autoSaveOutput{}, nil
	}

	res := formstate.ExtractAutoSave(f.Schema(), input.Data, s.opts)
	return nil, autoSaveOutput{ShouldSave: res.ShouldSave, Payload: nonNilMap(res.Payload)}, nil
}

type lintInput struct {
	Definition string `json:"definition,omitempty" jsonschema:"Inline YAML form definition to lint instead of the loaded forms"`
}

type lintOutput struct {
	Valid    bool             `json:"valid"`
	Problems []string         `json:"problems,omitempty"`
	Warnings []schema.Warning `json:"warnings,omitempty"`
}

func (s *Server) handleLint(_ context.Context, _ *mcp.CallToolRequest, input lintInput) (*mcp.CallToolResult, lintOutput, error) {
	forms := s.sortedForms()
	if input.Definition != "" {
		f, err := schema.Parse([]byte(input.Definition))
		if err != nil {
			return errResult(fmt.Errorf("parsing definition: %w", err)), lintOutput{}, nil
		}
		forms = []schema.Form{f}
	}

	out := lintOutput{Valid: true}
	if err := schema.ValidateSchemas(forms); err != nil {
		var ve *schema.ValidationError
		if !errors.As(err, &ve) {
			return errResult(err), lintOutput{}, nil
		}
		out.Valid = false
		out.Problems = ve.Problems
	}
	out.Warnings = schema.Lint(forms)
	return nil, out, nil
}

func toObject(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding field states: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decoding field states: %w", err)
	}
	return nonNilMap(m), nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
