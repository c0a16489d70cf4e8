package attachment

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/GyroZepelix/mithril-forms/internal/auth"
	"github.com/GyroZepelix/mithril-forms/internal/forms"
	"github.com/GyroZepelix/mithril-forms/internal/server"
)

// maxFormSize bounds the multipart body: the file plus 1 MiB of overhead.
const maxFormSize = MaxUploadSize + 1<<20

// Handler provides HTTP handlers for attachments.
type Handler struct {
	service *Service
	forms   *forms.Registry
}

// NewHandler creates a new attachment Handler.
func NewHandler(service *Service, registry *forms.Registry) *Handler {
	return &Handler{service: service, forms: registry}
}

func internalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	server.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred", nil)
}

// Upload handles POST /api/forms/{form}/attachments?field=key.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "form")
	f, err := h.forms.Get(name)
	if err != nil {
		server.Error(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("form '%s' not found", name), nil)
		return
	}

	fieldKey := r.URL.Query().Get("field")
	if fieldKey == "" {
		server.Error(w, http.StatusBadRequest, "MISSING_FIELD", "the 'field' query parameter is required", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		server.Error(w, http.StatusBadRequest, "INVALID_UPLOAD",
			"failed to parse multipart form: file may be too large", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		server.Error(w, http.StatusBadRequest, "MISSING_FILE",
			"missing 'file' field in multipart form", nil)
		return
	}
	defer file.Close()

	a, err := h.service.Upload(r.Context(), f, fieldKey, header, auth.ReviewerIDFromContext(r.Context()))
	if err != nil {
		var ue *UploadError
		if errors.As(err, &ue) {
			server.Error(w, http.StatusBadRequest, "UPLOAD_ERROR", ue.Message, nil)
			return
		}
		internalError(w, "attachment upload failed", err)
		return
	}

	server.JSON(w, http.StatusCreated, a)
}

// Delete handles DELETE /admin/api/attachments/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !isValidUUID(id) {
		server.Error(w, http.StatusBadRequest, "INVALID_ID", "id must be a valid UUID", nil)
		return
	}

	if err := h.service.Delete(r.Context(), id, auth.ReviewerIDFromContext(r.Context())); err != nil {
		if errors.Is(err, ErrNotFound) {
			server.Error(w, http.StatusNotFound, "NOT_FOUND", "attachment not found", nil)
			return
		}
		internalError(w, "attachment delete failed", err)
		return
	}

	server.JSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// Serve handles GET /attachments/{filename}?v=sm.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	variant := r.URL.Query().Get("v")
	if variant == "" {
		variant = Original
	}
	if !validVariants[variant] {
		server.Error(w, http.StatusBadRequest, "INVALID_VARIANT",
			"variant must be one of: "+strings.Join(variants, ", "), nil)
		return
	}

	a, path, err := h.service.File(r.Context(), filename, variant)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			server.Error(w, http.StatusNotFound, "NOT_FOUND", "attachment not found", nil)
			return
		}
		internalError(w, "attachment lookup failed", err)
		return
	}
	if path == "" {
		server.Error(w, http.StatusBadRequest, "INVALID_FILENAME", "invalid filename", nil)
		return
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			server.Error(w, http.StatusNotFound, "NOT_FOUND", "attachment file not found on disk", nil)
			return
		}
		internalError(w, "attachment file stat failed", err)
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")

	// Anything but images is downloaded, never rendered inline.
	if !imageMIMETypes[a.MimeType] {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s"`, sanitizeFilename(a.OriginalName)))
	}

	contentType := a.MimeType
	if variant != Original {
		contentType = thumbnailMIME(a.MimeType)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")

	http.ServeFile(w, r, path)
}

// thumbnailMIME is the content type of thumbnails made from mimeType.
func thumbnailMIME(mimeType string) string {
	if mimeType == "image/webp" {
		return "image/png"
	}
	return mimeType
}

// sanitizeFilename removes characters that break Content-Disposition
// headers.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `"`, "")
	name = strings.ReplaceAll(name, `\`, "")
	if name == "" {
		name = "download"
	}
	return name
}
