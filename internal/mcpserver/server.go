// Package mcpserver exposes form evaluation as MCP (Model Context Protocol)
// tools over stdio, so assistants can fill, check and lint forms without the
// HTTP API or a database.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/GyroZepelix/mithril-forms/internal/formstate"
	"github.com/GyroZepelix/mithril-forms/internal/schema"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

const serverInstructions = `mithril-forms MCP server: evaluates form definitions against user data.

Every tool addresses a form either by "form" (the name of a definition loaded from the schema directory at startup) or by "definition" (an inline YAML form definition). Use list_forms to discover names.

- evaluate_form returns per-field visibility, required and disabled flags, values and errors.
- finalize_form returns the cleaned submission payload or field errors.
- autosave_form returns the draft payload an autosave would persist.
- lint_forms reports invalid and suspicious definitions.`

// Server holds the form definitions the tools operate on.
type Server struct {
	forms map[string]schema.Form
	opts  formstate.Options
}

// New creates a Server over the given definitions.
func New(forms []schema.Form, logger *slog.Logger) *Server {
	m := make(map[string]schema.Form, len(forms))
	for _, f := range forms {
		m[f.Name] = f
	}
	return &Server{forms: m, opts: formstate.Options{Logger: logger}}
}

// Run serves the tools over stdio until the client disconnects or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer().Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) mcpServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{Name: "mithril-forms", Version: Version},
		&mcp.ServerOptions{Instructions: serverInstructions},
	)
	s.registerTools(server)
	return server
}

func (s *Server) registerTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_forms",
		Description: "List the form definitions loaded at startup with their labels and field keys.",
	}, s.handleListForms)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "evaluate_form",
		Description: "Compute the live state of a form for the given data: per-field value, visibility, disabled and required flags and validation error, plus overall validity. Hidden fields are never validated.",
	}, s.handleEvaluate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "finalize_form",
		Description: "Finalize a submission. Returns success with the cleaned payload (visible fields only, excluded keys dropped, values cast to their data types) or the errors keyed by dotted field path.",
	}, s.handleFinalize)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "autosave_form",
		Description: "Extract the draft payload an autosave would persist: autoSave fields that are visible, enabled, error free and filled in when required. Excluded keys are dropped. lint_forms reports restricted fields marked autoSave.",
	}, s.handleAutoSave)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lint_forms",
		Description: "Validate form definitions and report suspicious constructs. Checks all loaded forms, or only the inline definition when one is given.",
	}, s.handleLint)
}

// resolve returns the form a tool call names, either a loaded one or an
// inline definition. Inline definitions are validated before use.
func (s *Server) resolve(name, definition string) (*schema.Form, error) {
	switch {
	case definition != "":
		f, err := schema.Parse([]byte(definition))
		if err != nil {
			return nil, err
		}
		if err := schema.ValidateSchemas([]schema.Form{f}); err != nil {
			return nil, err
		}
		return &f, nil
	case name != "":
		f, ok := s.forms[name]
		if !ok {
			return nil, fmt.Errorf("form %q not found", name)
		}
		return &f, nil
	}
	return nil, fmt.Errorf("either form or definition is required")
}

// sortedForms returns the loaded forms ordered by name.
func (s *Server) sortedForms() []schema.Form {
	out := make([]schema.Form, 0, len(s.forms))
	for _, f := range s.forms {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// errResult creates an MCP error result from an error.
func errResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
