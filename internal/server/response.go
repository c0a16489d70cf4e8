// Package server provides the HTTP server, router, middleware, and JSON
// response helpers for Mithril Forms.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
)

// MaxBodySize is the largest JSON request body accepted (1 MiB).
const MaxBodySize = 1 << 20

// FieldError represents a single field-level validation error in an API response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// PaginationMeta holds pagination metadata for list responses.
type PaginationMeta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPaginationMeta fills TotalPages from total and perPage.
func NewPaginationMeta(page, perPage, total int) PaginationMeta {
	totalPages := 0
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return PaginationMeta{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

type successResponse struct {
	Data any `json:"data"`
}

type paginatedResponse struct {
	Data any            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

type errorBody struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// JSON writes data wrapped in a {"data": ...} envelope.
func JSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successResponse{Data: data})
}

// Error writes a JSON error response with the given status code, error code,
// message, and optional field-level details.
func Error(w http.ResponseWriter, status int, code string, message string, details []FieldError) {
	writeJSON(w, status, errorResponse{
		Error: errorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// InternalError logs err and writes a generic 500 response.
func InternalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred", nil)
}

// Paginated writes a JSON list response with pagination metadata.
func Paginated(w http.ResponseWriter, data any, meta PaginationMeta) {
	writeJSON(w, http.StatusOK, paginatedResponse{Data: data, Meta: meta})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent.
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// DecodeJSON reads a JSON body of at most MaxBodySize bytes into v. On
// failure it writes a 400 or 413 response and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				fmt.Sprintf("request body exceeds %d bytes", MaxBodySize), nil)
			return false
		}
		Error(w, http.StatusBadRequest, "INVALID_REQUEST", "could not read request body", nil)
		return false
	}
	if len(body) == 0 {
		Error(w, http.StatusBadRequest, "INVALID_REQUEST", "request body is empty", nil)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", nil)
		return false
	}
	return true
}

// ParsePagination extracts page and per_page query parameters. Defaults are
// page 1 and 20 per page; per_page is capped at 100.
func ParsePagination(r *http.Request) (page, perPage int) {
	page = 1
	perPage = 20

	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			perPage = min(n, 100)
		}
	}
	return page, perPage
}
