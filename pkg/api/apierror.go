// Package api serves the custody HTTP API and its RFC 7807 problem responses.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Mindburn-Labs/custody/pkg/catalog"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// All API error responses use this format.
type ProblemDetail struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Instance is a URI reference identifying the specific occurrence.
	Instance string `json:"instance,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func problemType(status int) string {
	return fmt.Sprintf("https://custody.dev/errors/%d", status)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:   problemType(status),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// WriteErrorR is WriteError with the request path as the problem instance.
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:     problemType(status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}

func writeProblem(w http.ResponseWriter, p *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but never exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

// WriteCatalogError maps catalog sentinels to problem responses.
// Integrity and storage failures never leak their cause.
func WriteCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrValidation), errors.Is(err, catalog.ErrInvalidGrant):
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, catalog.ErrRecordNotFound):
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", "Record not found")
	case errors.Is(err, catalog.ErrGrantNotFound):
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", "Grant not found")
	case errors.Is(err, catalog.ErrNotOwner):
		WriteErrorR(w, r, http.StatusForbidden, "Forbidden", "Only the record owner may do this")
	case errors.Is(err, catalog.ErrAccessDenied):
		WriteErrorR(w, r, http.StatusForbidden, "Forbidden", "Access denied")
	case errors.Is(err, catalog.ErrIntegrityViolation):
		slog.ErrorContext(r.Context(), "integrity violation served as 500", "path", r.URL.Path, "error", err)
		WriteErrorR(w, r, http.StatusInternalServerError, "Integrity Violation", "Record failed its integrity check")
	case errors.Is(err, catalog.ErrRecordCorrupted):
		slog.ErrorContext(r.Context(), "corrupted record served as 500", "path", r.URL.Path, "error", err)
		WriteErrorR(w, r, http.StatusInternalServerError, "Record Corrupted", "Record content is missing from storage")
	case errors.Is(err, catalog.ErrStorageUnavailable):
		slog.WarnContext(r.Context(), "storage unavailable", "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "30")
		WriteErrorR(w, r, http.StatusServiceUnavailable, "Service Unavailable", "Storage is temporarily unavailable")
	default:
		WriteInternal(w, err)
	}
}
