package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/warp/filing-engine/config"
	"github.com/warp/filing-engine/filing"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeValidationError reports failed struct tags as {"field": "tag"}.
func writeValidationError(w http.ResponseWriter, err error) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	details := make(map[string]string, len(ve))
	for _, fe := range ve {
		details[fe.Field()] = fe.Tag()
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "Validation failed",
		Code:    "validation_failed",
		Details: details,
	})
}

// fail maps an engine error onto a status code. Unexpected errors are
// logged and answered with a generic body.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	var dep *filing.DependencyError
	switch {
	case errors.As(err, &dep):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "GSTR-1 must be filed and locked before GSTR-3B can be opened",
			Code:  "dependency_not_met",
			Details: map[string]string{
				"client_id":      string(dep.ClientID),
				"period":         dep.Period.String(),
				"outward_status": string(dep.OutwardStatus),
			},
		})
	case filing.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not found", Code: "not_found", Details: err.Error()})
	case errors.Is(err, filing.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "You are not allowed to perform this action", Code: "forbidden"})
	case errors.Is(err, filing.ErrLocked):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Return is filed and locked", Code: "locked"})
	case errors.Is(err, filing.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Action not allowed in the current status", Code: "invalid_transition", Details: err.Error()})
	case filing.IsRetryable(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Return was modified concurrently, please retry", Code: "conflict"})
	case filing.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Code: "invalid_input", Details: err.Error()})
	default:
		config.LogError(h.Log, "api", op, r.Method+" "+r.URL.Path, nil, err)
		writeError(w, http.StatusInternalServerError, "Something went wrong, please try again", nil)
	}
}
