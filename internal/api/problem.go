package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jandy1990/wwfm-platform-sub006/internal/coverage"
	"github.com/jandy1990/wwfm-platform-sub006/internal/store"
	"github.com/jandy1990/wwfm-platform-sub006/internal/worker"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

type problemType struct {
	typeURI string
	title   string
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]problemType{
	http.StatusUnauthorized:        {"https://wwfm.dev/errors/unauthorized", "Unauthorized"},
	http.StatusBadRequest:          {"https://wwfm.dev/errors/bad-request", "Bad Request"},
	http.StatusNotFound:            {"https://wwfm.dev/errors/not-found", "Not Found"},
	http.StatusInternalServerError: {"https://wwfm.dev/errors/internal-error", "Internal Server Error"},
	http.StatusServiceUnavailable:  {"https://wwfm.dev/errors/service-unavailable", "Service Unavailable"},
	http.StatusConflict:            {"https://wwfm.dev/errors/conflict", "Conflict"},
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt, ok := problemTypes[status]
	if !ok {
		pt = problemType{typeURI: "https://wwfm.dev/errors/unknown", title: http.StatusText(status)}
	}

	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapError converts domain errors to Problem Details responses.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, coverage.ErrUnknownStrategy):
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, worker.ErrAlreadyRunning):
		WriteProblem(w, r, http.StatusConflict, "A run is already in progress")
	default:
		// Never expose internal error details to client
		slog.Error("request failed",
			"component", "api",
			"path", r.URL.Path,
			"error", err,
		)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
