// Package schemaapi provides HTTP handlers for form definition management.
// It is separated from the schema package to avoid import cycles, since the
// handler depends on the server, auth, and audit packages.
package schemaapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/GyroZepelix/mithril-forms/internal/audit"
	"github.com/GyroZepelix/mithril-forms/internal/auth"
	"github.com/GyroZepelix/mithril-forms/internal/forms"
	"github.com/GyroZepelix/mithril-forms/internal/schema"
	"github.com/GyroZepelix/mithril-forms/internal/server"
)

// refresher reloads definitions from disk. *schema.Engine implements it.
type refresher interface {
	Refresh(ctx context.Context, dir string, force bool) (*schema.RefreshResult, []schema.Form, error)
}

// Handler provides HTTP handlers for form definition management.
type Handler struct {
	engine    refresher
	schemaDir string
	forms     *forms.Registry
	audit     *audit.Service
}

// NewHandler creates a new schema Handler. The audit service is optional.
func NewHandler(engine *schema.Engine, schemaDir string, registry *forms.Registry, auditSvc *audit.Service) *Handler {
	return newHandler(engine, schemaDir, registry, auditSvc)
}

func newHandler(engine refresher, schemaDir string, registry *forms.Registry, auditSvc *audit.Service) *Handler {
	return &Handler{
		engine:    engine,
		schemaDir: schemaDir,
		forms:     registry,
		audit:     auditSvc,
	}
}

type changeResponse struct {
	Type   string `json:"type"`
	Form   string `json:"form"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail"`
	Safe   bool   `json:"safe"`
}

// Refresh handles POST /admin/api/schema/refresh[?force=true]. It reloads
// definitions from disk, diffs them against the registered ones and applies
// the changes. Breaking changes block the whole refresh with 409 unless
// force is set.
//
// Response on success (200):
//
//	{"data": {"applied": [...], "new_forms": [...], "updated_forms": [...]}}
//
// Response on breaking changes (409):
//
//	{"error": {"code": "BREAKING_CHANGES", "message": "...", "details": [...]}}
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	result, loaded, err := h.engine.Refresh(r.Context(), h.schemaDir, force)
	if err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) {
			details := make([]server.FieldError, 0, len(ve.Problems))
			for _, p := range ve.Problems {
				details = append(details, server.FieldError{Message: p})
			}
			server.Error(w, http.StatusBadRequest, "SCHEMA_INVALID", "form definitions are invalid", details)
			return
		}
		slog.Error("schema refresh failed", "error", err)
		server.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"schema refresh failed: "+err.Error(), nil)
		return
	}

	// Nothing was written, so the registry keeps serving the old forms.
	if loaded == nil && len(result.Breaking) > 0 {
		details := make([]server.FieldError, 0, len(result.Breaking))
		for _, c := range result.Breaking {
			field := c.Form
			if c.Field != "" {
				field += "." + c.Field
			}
			details = append(details, server.FieldError{Field: field, Message: c.Detail})
		}
		server.Error(w, http.StatusConflict, "BREAKING_CHANGES",
			"schema refresh blocked due to breaking changes", details)
		return
	}

	if loaded != nil {
		h.forms.Replace(loaded)
	}

	h.audit.Log(r.Context(), audit.Event{
		Action:  audit.ActionSchemaRefresh,
		ActorID: auth.ReviewerIDFromContext(r.Context()),
		Payload: map[string]any{
			"applied_count": len(result.Applied),
			"new_forms":     result.NewForms,
			"updated_forms": result.UpdatedForms,
			"forced":        force && len(result.Breaking) > 0,
		},
	})

	applied := make([]changeResponse, 0, len(result.Applied))
	for _, c := range result.Applied {
		applied = append(applied, changeResponse{
			Type:   string(c.Type),
			Form:   c.Form,
			Field:  c.Field,
			Detail: c.Detail,
			Safe:   c.Safe,
		})
	}

	server.JSON(w, http.StatusOK, map[string]any{
		"applied":       applied,
		"new_forms":     nonNil(result.NewForms),
		"updated_forms": nonNil(result.UpdatedForms),
	})
}

// Lint handles GET /admin/api/schema/lint. It reports suspicious but valid
// constructs in the forms currently served.
func (h *Handler) Lint(w http.ResponseWriter, r *http.Request) {
	current := h.forms.List()
	list := make([]schema.Form, 0, len(current))
	for _, f := range current {
		list = append(list, *f)
	}

	warnings := schema.Lint(list)
	if warnings == nil {
		warnings = []schema.Warning{}
	}
	server.JSON(w, http.StatusOK, warnings)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
