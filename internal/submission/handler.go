package submission

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/GyroZepelix/mithril-forms/internal/auth"
	"github.com/GyroZepelix/mithril-forms/internal/forms"
	"github.com/GyroZepelix/mithril-forms/internal/server"
)

var (
	// uuidRegex matches a standard UUID format.
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// draftIDRegex matches client-chosen draft identifiers.
	draftIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// Handler provides HTTP handlers for evaluation, submissions and drafts.
type Handler struct {
	service *Service
	forms   *forms.Registry
}

// NewHandler creates a new submission Handler.
func NewHandler(service *Service, registry *forms.Registry) *Handler {
	return &Handler{service: service, forms: registry}
}

// request is the body of evaluate, submit and draft calls.
type request struct {
	Data   map[string]any `json:"data"`
	Config map[string]any `json:"config"`
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (request, bool) {
	var req request
	if !server.DecodeJSON(w, r, &req) {
		return req, false
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	return req, true
}

// handleServiceError writes the appropriate error response for service errors.
func handleServiceError(w http.ResponseWriter, err error) {
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		server.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"Validation failed", valErr.Fields)
		return
	}
	if errors.Is(err, forms.ErrFormNotFound) {
		server.Error(w, http.StatusNotFound, "NOT_FOUND", "form not found", nil)
		return
	}
	if errors.Is(err, ErrNotFound) {
		server.Error(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
		return
	}
	slog.Error("submission service error", "error", err)
	server.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"an internal error occurred", nil)
}

func draftID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "draftID")
	if !draftIDRegex.MatchString(id) {
		server.Error(w, http.StatusBadRequest, "INVALID_ID",
			"draft id must be 1-64 letters, digits, '-' or '_'", nil)
		return "", false
	}
	return id, true
}

func submissionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !uuidRegex.MatchString(id) {
		server.Error(w, http.StatusBadRequest, "INVALID_ID", "id must be a valid UUID", nil)
		return "", false
	}
	return id, true
}

// --- Public handlers ---

// Evaluate handles POST /api/forms/{form}/evaluate.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	st, err := h.service.Evaluate(r.Context(), chi.URLParam(r, "form"), req.Data, req.Config)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	server.JSON(w, http.StatusOK, st)
}

// Submit handles POST /api/forms/{form}/submissions.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	actorID := auth.ReviewerIDFromContext(r.Context())
	sub, err := h.service.Submit(r.Context(), chi.URLParam(r, "form"), req.Data, req.Config, actorID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	server.JSON(w, http.StatusCreated, sub)
}

// GetDraft handles GET /api/forms/{form}/drafts/{draftID}.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := draftID(w, r)
	if !ok {
		return
	}
	d, err := h.service.GetDraft(r.Context(), chi.URLParam(r, "form"), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	server.JSON(w, http.StatusOK, d)
}

// SaveDraft handles PUT /api/forms/{form}/drafts/{draftID}.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := draftID(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	res, err := h.service.SaveDraft(r.Context(), chi.URLParam(r, "form"), id, req.Data)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	server.JSON(w, http.StatusOK, res)
}

// DeleteDraft handles DELETE /api/forms/{form}/drafts/{draftID}.
func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := draftID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDraft(r.Context(), chi.URLParam(r, "form"), id); err != nil {
		handleServiceError(w, err)
		return
	}
	server.JSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// --- Reviewer handlers ---

// List handles GET /admin/api/forms/{form}/submissions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "form")
	f, err := h.forms.Get(name)
	if err != nil {
		server.Error(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("form '%s' not found", name), nil)
		return
	}

	q, err := ParseQueryParams(r, f)
	if err != nil {
		server.Error(w, http.StatusBadRequest, "INVALID_PARAMS", err.Error(), nil)
		return
	}

	subs, total, err := h.service.List(r.Context(), f.Name, q)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if subs == nil {
		subs = []*Submission{}
	}
	server.Paginated(w, subs, server.NewPaginationMeta(q.Page, q.PerPage, total))
}

// Get handles GET /admin/api/forms/{form}/submissions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := submissionID(w, r)
	if !ok {
		return
	}
	sub, err := h.service.GetByID(r.Context(), chi.URLParam(r, "form"), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	server.JSON(w, http.StatusOK, sub)
}

// Delete handles DELETE /admin/api/forms/{form}/submissions/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := submissionID(w, r)
	if !ok {
		return
	}
	actorID := auth.ReviewerIDFromContext(r.Context())
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "form"), id, actorID); err != nil {
		handleServiceError(w, err)
		return
	}
	server.JSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}
