package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wolfman30/hmpv-lab-platform/internal/auth"
	"github.com/wolfman30/hmpv-lab-platform/internal/labtests"
	"github.com/wolfman30/hmpv-lab-platform/internal/reportfiles"
	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

const maxJSONBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", labtests.ErrInvalidInput, err)
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, labtests.ErrNotFound), errors.Is(err, reportfiles.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, labtests.ErrInvalidInput),
		errors.Is(err, labtests.ErrInvalidStatus),
		errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, labtests.ErrInvalidTransition), errors.Is(err, labtests.ErrReportExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrNoSession),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, reportfiles.ErrDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status; 5xx details stay in the log.
func respondError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg := "internal server error"
		if status == http.StatusServiceUnavailable {
			msg = err.Error()
		}
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}
