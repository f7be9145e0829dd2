package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
)

// OrganizationHeader carries the tenant id on every API request.
const OrganizationHeader = "X-Organization-ID"

type orgKey struct{}

// RequireOrganization rejects requests without a tenant id and stores it on
// the request context.
func RequireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := strings.TrimSpace(r.Header.Get(OrganizationHeader))
		if orgID == "" {
			WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "missing " + OrganizationHeader + " header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), orgKey{}, orgID)))
	})
}

// OrganizationID returns the tenant id set by RequireOrganization, falling
// back to the header for handlers mounted without the middleware.
func OrganizationID(r *http.Request) string {
	if id, ok := r.Context().Value(orgKey{}).(string); ok {
		return id
	}
	return strings.TrimSpace(r.Header.Get(OrganizationHeader))
}

// DecodeJSON reads the request body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return appErrors.NewValidation("invalid request body: %v", err)
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}

// WriteError maps service errors onto HTTP statuses.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}

func StatusFor(err error) int {
	var invalid *appErrors.ErrInvalidTransition
	switch {
	case appErrors.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &invalid),
		errors.Is(err, appErrors.ErrCampaignNotDrained),
		errors.Is(err, appErrors.ErrInvocationMismatch):
		return http.StatusConflict
	case appErrors.IsValidation(err),
		errors.Is(err, appErrors.ErrInvalidTaskContext),
		errors.Is(err, appErrors.ErrUnsupportedChannel),
		errors.Is(err, appErrors.ErrReasonRequired),
		errors.Is(err, appErrors.ErrStaffRequired):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
