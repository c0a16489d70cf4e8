package forms

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/GyroZepelix/mithril-forms/internal/form"
	"github.com/GyroZepelix/mithril-forms/internal/openapi"
	"github.com/GyroZepelix/mithril-forms/internal/schema"
	"github.com/GyroZepelix/mithril-forms/internal/server"
)

// FormResponse is a form definition as served to clients.
type FormResponse struct {
	Name        string         `json:"name"`
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	Public      bool           `json:"public"`
	Exclude     []string       `json:"exclude,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	Fields      form.Fields    `json:"fields"`
}

// AdminFormResponse adds registration and storage details for reviewers.
type AdminFormResponse struct {
	FormResponse
	SchemaHash      string `json:"schema_hash"`
	SubmissionCount int    `json:"submission_count"`
	DraftCount      int    `json:"draft_count"`
}

type counter interface {
	Counts(ctx context.Context) (map[string]Counts, error)
}

// Handler provides HTTP handlers for form introspection.
type Handler struct {
	registry *Registry
	counts   counter
}

// NewHandler creates a new forms Handler.
func NewHandler(registry *Registry, repo *Repository) *Handler {
	return &Handler{registry: registry, counts: repo}
}

// ListPublic handles GET /api/forms.
func (h *Handler) ListPublic(w http.ResponseWriter, r *http.Request) {
	forms := h.registry.Public()
	out := make([]FormResponse, len(forms))
	for i, f := range forms {
		out[i] = buildResponse(f)
	}
	server.JSON(w, http.StatusOK, out)
}

// GetPublic handles GET /api/forms/{form}. Visibility is enforced by
// RequirePublic.
func (h *Handler) GetPublic(w http.ResponseWriter, r *http.Request) {
	f, ok := h.form(w, r)
	if !ok {
		return
	}
	server.JSON(w, http.StatusOK, buildResponse(f))
}

// OpenAPI handles GET /api/forms/{form}/openapi. The document is written
// as is, without the response envelope.
func (h *Handler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	f, ok := h.form(w, r)
	if !ok {
		return
	}

	doc, err := openapi.Build(r.Context(), f)
	if err != nil {
		server.InternalError(w, "failed to build OpenAPI document", err)
		return
	}
	body, err := json.Marshal(doc)
	if err != nil {
		server.InternalError(w, "failed to encode OpenAPI document", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.Error("failed to write OpenAPI document", "form", f.Name, "error", err)
	}
}

// ListAdmin handles GET /admin/api/forms.
// The list is not paginated; a deployment serves a handful of forms.
func (h *Handler) ListAdmin(w http.ResponseWriter, r *http.Request) {
	counts, err := h.counts.Counts(r.Context())
	if err != nil {
		// A missing count should not hide the form list.
		slog.Error("failed to count form rows", "error", err)
		counts = nil
	}

	forms := h.registry.List()
	out := make([]AdminFormResponse, len(forms))
	for i, f := range forms {
		out[i] = buildAdminResponse(f, counts[f.Name])
	}
	server.JSON(w, http.StatusOK, out)
}

// GetAdmin handles GET /admin/api/forms/{form}.
func (h *Handler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	f, ok := h.form(w, r)
	if !ok {
		return
	}

	counts, err := h.counts.Counts(r.Context())
	if err != nil {
		server.InternalError(w, "failed to retrieve form counts", err)
		return
	}
	server.JSON(w, http.StatusOK, buildAdminResponse(f, counts[f.Name]))
}

func (h *Handler) form(w http.ResponseWriter, r *http.Request) (*schema.Form, bool) {
	name := chi.URLParam(r, "form")
	f, err := h.registry.Get(name)
	if err != nil {
		server.Error(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("form '%s' not found", name), nil)
		return nil, false
	}
	return f, true
}

func buildResponse(f *schema.Form) FormResponse {
	return FormResponse{
		Name:        f.Name,
		Label:       f.Label,
		Description: f.Description,
		Public:      f.Public,
		Exclude:     f.Exclude,
		Settings:    f.Settings,
		Fields:      f.Fields,
	}
}

func buildAdminResponse(f *schema.Form, c Counts) AdminFormResponse {
	return AdminFormResponse{
		FormResponse:    buildResponse(f),
		SchemaHash:      f.Hash,
		SubmissionCount: c.Submissions,
		DraftCount:      c.Drafts,
	}
}
