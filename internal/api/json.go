package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/lockset"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Kind  string `json:"kind,omitempty" example:"not_found"`
	Path  string `json:"path,omitempty" example:"projects/plan.md"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusOf maps a service error to an HTTP status.
func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAlreadyExists, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPathEscape, apperr.KindInvalidPath, apperr.KindInvalidMetadata, apperr.KindMalformedHeader:
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, lockset.ErrLockTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// client went away; status is only for the access log
		return 499
	}
	return http.StatusInternalServerError
}

// writeError reports err to the client. Server-side failures are logged and
// their details withheld.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		slog.Error(op+" failed", slog.String("path", apperr.PathOf(err)), slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Error: "internal error", Kind: string(apperr.KindOf(err))})
		return
	}
	kind := string(apperr.KindOf(err))
	if kind == "" && status == http.StatusServiceUnavailable {
		kind = "lock_timeout"
	}
	writeJSON(w, status, errResponse{
		Error: err.Error(),
		Kind:  kind,
		Path:  apperr.PathOf(err),
	})
}
